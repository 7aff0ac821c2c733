package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/vdavid/listbridge/internal/config"
	"github.com/vdavid/listbridge/internal/display"
	"github.com/vdavid/listbridge/internal/sendmail"
)

var sendMailCmd = &cobra.Command{
	Use:   "send-mail",
	Short: "Send the mbox message on stdin through the configured SMTP server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		cfg := config.Load()
		if err := cfg.ValidateSMTP(); err != nil {
			return err
		}

		raw, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("failed to read message: %w", err)
		}

		sender := sendmail.NewSender(sendmail.Options{
			Host:     cfg.SMTPHost,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			Insecure: cfg.SMTPInsecure,
		})
		if err := sender.Send(ctx, string(raw)); err != nil {
			return err
		}

		display.SuccessMsg("Sent")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sendMailCmd)
}
