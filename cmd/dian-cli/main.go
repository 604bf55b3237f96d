// dian-cli is the command line client for the DIAN electronic invoicing services.
package main

import "github.com/facturae-co/dian-gateway/app/internal/cli"

func main() {
	cli.Execute()
}
