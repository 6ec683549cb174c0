package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate <crl-id>",
	Short: "Validate a stored CRL",
	Long: `Validate a stored CRL: signature, temporal consistency, DER
structure and extension presence.

The exit status is non-zero when the CRL fails validation. Warnings
(such as an expired CRL) do not fail validation.

Examples:
  crlengine validate 1b4e28ba-2fa1-11d2-883f-0016d3cca427`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.Close()

	res, err := app.engine.ValidateCRL(context.Background(), args[0])
	if err != nil {
		return err
	}

	fmt.Printf("CRL:     %s\n", res.CRLID)
	fmt.Printf("Issuer:  %s\n", res.Issuer)
	fmt.Printf("Number:  %d\n", res.Number)
	fmt.Printf("Entries: %d\n", res.EntryCount)
	for _, w := range res.Warnings {
		fmt.Printf("warning: %s\n", w)
	}
	for _, e := range res.Errors {
		fmt.Printf("error:   %s\n", e)
	}
	if !res.Valid {
		return fmt.Errorf("CRL %s failed validation", res.CRLID)
	}
	fmt.Println("Valid")
	return nil
}
