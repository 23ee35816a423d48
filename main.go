// Command siteaudit audits a website and exits with its worst check status.
package main

import (
	"os"

	"github.com/JakeFAU/siteaudit/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
