package main

import (
	"github.com/Jill09166/facebook-group-post-scraper/cmd/fbscrape/commands"
	"github.com/Jill09166/facebook-group-post-scraper/lib/serviceutil"
)

func main() {
	commands.ExecuteContext(serviceutil.SignalContext())
}
