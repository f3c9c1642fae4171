package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/templui/picsellart/internal/gateway"
)

// SignCmd produces Razorpay signatures for replaying callbacks against a
// local server.
func SignCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Sign Razorpay callbacks for local testing",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "checkout <gateway-order-id> <payment-id>",
		Short: "Print a signed checkout callback body",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := os.Getenv("RAZORPAY_KEY_SECRET")
			if secret == "" {
				return errors.New("RAZORPAY_KEY_SECRET is not set")
			}
			sig := gateway.SignCheckout(secret, args[0], args[1])
			fmt.Fprintf(cmd.OutOrStdout(), `{"razorpay_order_id":%q,"razorpay_payment_id":%q,"razorpay_signature":%q}`+"\n", args[0], args[1], sig)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "webhook",
		Short: "Print the X-Razorpay-Signature of a webhook body read from stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := os.Getenv("RAZORPAY_WEBHOOK_SECRET")
			if secret == "" {
				return errors.New("RAZORPAY_WEBHOOK_SECRET is not set")
			}
			body, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), gateway.SignWebhook(secret, body))
			return nil
		},
	})
	return cmd
}
