package main

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"MiniCart/internal/cart"
	"MiniCart/internal/cartd"
	"MiniCart/pkg/kit"
)

func showCmd(opts *globalOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, c cartAPI) ([]cart.Item, error) {
				return c.Products(ctx)
			})
		},
	}
}

func addCmd(opts *globalOpts) *cobra.Command {
	var in cart.ItemInput

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add an item, or bump its quantity if already present",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in.ID = strings.TrimSpace(in.ID)
			if in.ID == "" {
				return errors.New("--id is required")
			}
			return opts.run(cmd, func(ctx context.Context, c cartAPI) ([]cart.Item, error) {
				return c.AddToCart(ctx, in)
			})
		},
	}

	cmd.Flags().StringVar(&in.ID, "id", "", "item id")
	cmd.Flags().StringVar(&in.Title, "title", "", "item title")
	cmd.Flags().StringVar(&in.ImageURL, "image-url", "", "item image URL")
	cmd.Flags().Float64Var(&in.Price, "price", 0, "unit price")

	return cmd
}

func incCmd(opts *globalOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "inc <id>",
		Short: "Increase the quantity of an item by one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, c cartAPI) ([]cart.Item, error) {
				return c.Increment(ctx, args[0])
			})
		},
	}
}

func decCmd(opts *globalOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "dec <id>",
		Short: "Decrease the quantity of an item by one (never below 1)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, c cartAPI) ([]cart.Item, error) {
				return c.Decrement(ctx, args[0])
			})
		},
	}
}

func tokenCmd() *cobra.Command {
	var (
		device string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a device token for cartd (uses CART_JWT_SECRET)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := kit.Getenv("CART_JWT_SECRET", "")
			if len(secret) < 32 {
				return errors.New("CART_JWT_SECRET is required and must be at least 32 chars")
			}
			if device == "" {
				device = "dev_" + uuid.NewString()
			}

			tok, err := cartd.NewTokenMaker(secret).New(device, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), tok)
			return err
		},
	}

	cmd.Flags().StringVar(&device, "device", "", "device id (random when empty)")
	cmd.Flags().DurationVar(&ttl, "ttl", 30*24*time.Hour, "token lifetime")

	return cmd
}

func versionCmd() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			if short {
				fmt.Fprintln(cmd.OutOrStdout(), version)
				return
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cartctl %s (%s) %s %s/%s\n",
				version, commit, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}

	cmd.Flags().BoolVarP(&short, "short", "s", false, "Print only version number")
	return cmd
}
