// Command changelogwatch monitors product changelogs.
//
// Each configured document is retrieved through an ordered chain of strategies
// (plain HTTP, browser-like HTTP, headless Chrome via chromedp or rod, and the
// single-file CLI), summarized into dated change records by OpenAI or Gemini,
// filtered to the last num_days days and written to one markdown file. New
// records are posted to Slack and/or Pub/Sub; a Redis seen-set suppresses
// records that were already announced.
//
// Usage:
//
//	changelogwatch run -c config.yaml -o changelog.md
//	changelogwatch serve -c config.yaml
package main

import (
	_ "time/tzdata"

	"github.com/JakeFAU/changelog-watch/cmd"
)

func main() {
	cmd.Execute()
}
