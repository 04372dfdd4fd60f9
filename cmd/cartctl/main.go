package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"MiniCart/internal/cart"
	"MiniCart/internal/cartd"
	"MiniCart/internal/kv"
	"MiniCart/pkg/kit"
)

var (
	version = "dev"
	commit  = "none"
)

// cartAPI is satisfied by both a local cart registration and the cartd client.
type cartAPI interface {
	Products(ctx context.Context) ([]cart.Item, error)
	AddToCart(ctx context.Context, in cart.ItemInput) ([]cart.Item, error)
	Increment(ctx context.Context, id string) ([]cart.Item, error)
	Decrement(ctx context.Context, id string) ([]cart.Item, error)
}

var (
	_ cartAPI = localCart{}
	_ cartAPI = (*cartd.Client)(nil)
)

// localCart adapts a cart registration to cartAPI.
type localCart struct {
	*cart.Consumer
}

func (l localCart) Products(context.Context) ([]cart.Item, error) {
	return l.Consumer.Products()
}

type globalOpts struct {
	storage kv.Config
	key     string
	server  string
	token   string
	timeout time.Duration
	json    bool
	verbose bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOpts{}

	rootCmd := &cobra.Command{
		Use:   "cartctl",
		Short: "Inspect and change the cart",
		Long: `cartctl reads and mutates the cart either directly on its storage
backend or through a running cartd (--server).`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	f := rootCmd.PersistentFlags()
	f.StringVar(&opts.storage.Driver, "storage", kit.Getenv("CART_STORAGE", kv.DriverSQLite), "storage driver: memory, sqlite, postgres, redis")
	f.StringVar(&opts.storage.SQLitePath, "sqlite-path", kit.Getenv("CART_SQLITE_PATH", "minicart.db"), "sqlite database file")
	f.StringVar(&opts.storage.PostgresDSN, "dsn", kit.Getenv("DATABASE_URL", ""), "postgres DSN")
	f.StringVar(&opts.storage.RedisAddr, "redis-addr", kit.Getenv("REDIS_ADDR", ""), "redis address or URL")
	f.StringVar(&opts.storage.RedisPrefix, "redis-prefix", kit.Getenv("REDIS_PREFIX", ""), "redis key prefix")
	f.StringVar(&opts.key, "key", kit.Getenv("CART_STORAGE_KEY", cart.StorageKey), "storage key")
	f.StringVar(&opts.server, "server", kit.Getenv("CARTD_URL", ""), "cartd base URL; bypasses local storage")
	f.StringVar(&opts.token, "token", kit.Getenv("CARTD_TOKEN", ""), "bearer token for cartd")
	f.DurationVar(&opts.timeout, "timeout", 10*time.Second, "overall timeout")
	f.BoolVar(&opts.json, "json", false, "print the cart as JSON")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "log storage activity")

	rootCmd.AddCommand(
		showCmd(opts),
		addCmd(opts),
		incCmd(opts),
		decCmd(opts),
		tokenCmd(),
		versionCmd(),
	)

	return rootCmd
}

func (o *globalOpts) logger() *zap.Logger {
	if !o.verbose {
		return zap.NewNop()
	}
	return kit.NewLogger("cartctl", "debug")
}

// open returns the cart to operate on and a func releasing it.
func (o *globalOpts) open(ctx context.Context) (cartAPI, func(), error) {
	if o.server != "" {
		return cartd.NewClient(o.server, o.token), func() {}, nil
	}

	log := o.logger()
	storage, err := kv.Open(ctx, o.storage, log)
	if err != nil {
		return nil, nil, err
	}

	store := cart.NewStore(ctx, storage, cart.Options{Log: log, Key: o.key})
	if err := store.WaitLoaded(ctx); err != nil {
		_ = storage.Close()
		return nil, nil, err
	}
	if err := store.LoadErr(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: starting from an empty cart: %v\n", err)
	}

	c := store.Register()
	return localCart{c}, func() {
		c.Close()
		_ = storage.Close()
	}, nil
}

func (o *globalOpts) run(cmd *cobra.Command, fn func(ctx context.Context, c cartAPI) ([]cart.Item, error)) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), o.timeout)
	defer cancel()

	c, release, err := o.open(ctx)
	if err != nil {
		return err
	}
	defer release()

	items, err := fn(ctx, c)
	if err != nil {
		return err
	}
	return printItems(cmd.OutOrStdout(), items, o.json)
}

func printItems(w io.Writer, items []cart.Item, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(items)
	}

	if len(items) == 0 {
		_, err := fmt.Fprintln(w, "cart is empty")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tPRICE\tQTY")
	for _, it := range items {
		fmt.Fprintf(tw, "%s\t%s\t%.2f\t%d\n", it.ID, it.Title, it.Price, it.Quantity)
	}
	return tw.Flush()
}
