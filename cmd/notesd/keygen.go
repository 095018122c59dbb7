package main

import (
	"context"
	"fmt"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/i5heu/ouroboros-notes/pkg/token"
	"github.com/i5heu/ouroboros-notes/pkg/weakrsa"
	workerpool "github.com/i5heu/ouroboros-notes/pkg/workerPool"
)

var (
	keygenBits    int
	keygenCount   int
	keygenTimeout time.Duration
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate keys locally and print their tokens",
	Long: `Generates keys the same way the service does without storing anything.
Useful to see how long the d search takes for a given prime size.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, err := loadConfig()
		if err != nil {
			return err
		}
		if keygenBits == 0 {
			keygenBits = conf.KeyBits
		}
		if keygenCount < 1 {
			return fmt.Errorf("count must be at least 1")
		}
		layout, err := token.ParseLayout(conf.TokenLayout)
		if err != nil {
			return err
		}

		ctx, cancel := signalContext(conf.Logger)
		defer cancel()
		if keygenTimeout > 0 {
			ctx, cancel = context.WithTimeout(ctx, keygenTimeout)
			defer cancel()
		}

		s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
		s.Suffix = fmt.Sprintf(" Generating %d key(s) with %d bit primes", keygenCount, keygenBits)
		if err := s.Color("cyan"); err != nil {
			conf.Logger.Warnf("Failed to set spinner color: %v", err)
		}
		s.Start()

		gen := weakrsa.NewGenerator(weakrsa.WithLogger(conf.Logger))
		pool := workerpool.NewWorkerPool(workerpool.Config{WorkerCount: conf.KeygenWorkers})
		defer pool.Close()

		start := time.Now()
		room := workerpool.CreateRoom[*weakrsa.KeyPair](pool, keygenCount)
		for i := 0; i < keygenCount; i++ {
			err := room.NewTaskWaitForFreeSlot(ctx, func() (*weakrsa.KeyPair, error) {
				return gen.Generate(ctx, keygenBits)
			})
			if err != nil {
				s.Stop()
				return err
			}
		}
		results := room.Collect()
		s.Stop()

		codec := token.Codec{Layout: layout}
		var failed int
		for _, r := range results {
			if r.Err != nil {
				failed++
				fmt.Println(color.RedString("✗") + " " + r.Err.Error())
				continue
			}
			fmt.Println(color.GreenString("✓") + " " + color.CyanString("d bits: ") + fmt.Sprint(r.Value.D.BitLen()) +
				color.CyanString("  n bits: ") + fmt.Sprint(r.Value.N.BitLen()))
			fmt.Println(token.Prefix + codec.Encode(r.Value))
		}

		generated, attempts := gen.Stats()
		fmt.Printf("%s %d generated, %d attempts for d, %s\n",
			color.CyanString("→"), generated, attempts, time.Since(start).Round(time.Millisecond))

		if failed > 0 {
			return fmt.Errorf("%d of %d key generations failed", failed, keygenCount)
		}
		return nil
	},
}

func init() {
	keygenCmd.Flags().IntVarP(&keygenBits, "bits", "b", 0, "bits per prime, defaults to the configured key size")
	keygenCmd.Flags().IntVarP(&keygenCount, "count", "n", 1, "number of keys to generate")
	keygenCmd.Flags().DurationVar(&keygenTimeout, "timeout", 0, "give up after this long")
	rootCmd.AddCommand(keygenCmd)
}
