package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	notes "github.com/i5heu/ouroboros-notes"
)

var (
	backupOut string
	restoreIn string
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Dump the badger store to an xz compressed file",
	Long:  "Dump the badger store to an xz compressed file. The service must not be running on the same data path.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(func(svc *notes.Service) error {
			f, err := os.OpenFile(backupOut, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
			if err != nil {
				return err
			}
			if err := svc.Backup(f); err != nil {
				f.Close()
				os.Remove(backupOut)
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Println(color.GreenString("✓") + " Backup written to " + color.YellowString(backupOut))
			return nil
		})
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Load a dump written by backup into the badger store",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(func(svc *notes.Service) error {
			f, err := os.Open(restoreIn)
			if err != nil {
				return err
			}
			defer f.Close()

			if err := svc.Restore(f); err != nil {
				return err
			}
			fmt.Println(color.GreenString("✓") + " Restored " + color.YellowString(restoreIn))
			return nil
		})
	},
}

func init() {
	backupCmd.Flags().StringVarP(&backupOut, "out", "o", "notes.backup.xz", "file to write")
	restoreCmd.Flags().StringVarP(&restoreIn, "in", "i", "", "file to read")
	restoreCmd.MarkFlagRequired("in")
	rootCmd.AddCommand(backupCmd, restoreCmd)
}

// withService opens the configured store without serving HTTP.
func withService(fn func(*notes.Service) error) error {
	conf, err := loadConfig()
	if err != nil {
		return err
	}
	conf.Store.GCInterval = 0

	svc, err := notes.New(conf)
	if err != nil {
		return err
	}
	ctx := context.Background()
	if err := svc.Start(ctx); err != nil {
		return err
	}
	defer svc.Close(ctx)

	return fn(svc)
}
