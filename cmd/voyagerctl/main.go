// Command voyagerctl is a thin smoke-test CLI over the client package,
// supplemented from original_source/httpx/_apps: a single request in,
// status line, headers and body out. It carries no core semantics of its own.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/yourusername/voyager/pkg/voyager/body"
	"github.com/yourusername/voyager/pkg/voyager/client"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		method     string
		headers    []string
		data       string
		timeout    time.Duration
		noRedirect bool
	)

	cmd := &cobra.Command{
		Use:   "voyagerctl <url>",
		Short: "Send one HTTP request through voyager and print the response.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), args[0], method, headers, data, timeout, !noRedirect)
		},
	}

	cmd.Flags().StringVarP(&method, "method", "X", "GET", "HTTP method")
	cmd.Flags().StringArrayVarP(&headers, "header", "H", nil, "request header, as Name:Value (repeatable)")
	cmd.Flags().StringVarP(&data, "data", "d", "", "raw request body")
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 30*time.Second, "overall request timeout")
	cmd.Flags().BoolVar(&noRedirect, "no-redirect", false, "disable following redirects")

	return cmd
}

func run(ctx context.Context, rawURL, method string, rawHeaders []string, data string, timeout time.Duration, allowRedirects bool) error {
	c, err := client.NewClient(client.Config{AllowRedirects: allowRedirects})
	if err != nil {
		return fmt.Errorf("voyagerctl: %w", err)
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	opts := make([]client.Option, 0, len(rawHeaders)+1)
	for _, h := range rawHeaders {
		name, value, ok := strings.Cut(h, ":")
		if !ok {
			return fmt.Errorf("voyagerctl: invalid --header %q, expected Name:Value", h)
		}
		opts = append(opts, client.WithHeader(strings.TrimSpace(name), strings.TrimSpace(value)))
	}
	if data != "" {
		opts = append(opts, client.WithContent(body.FromBytes([]byte(data))))
	}

	resp, err := c.Request(ctx, method, rawURL, opts...)
	if err != nil {
		return fmt.Errorf("voyagerctl: %w", err)
	}
	defer resp.Close()

	fmt.Printf("%s %d\n", resp.Proto, resp.StatusCode)
	resp.Header.Range(func(name, value string) bool {
		fmt.Printf("%s: %s\n", name, value)
		return true
	})
	fmt.Println()
	buf := make([]byte, 32*1024)
	for {
		n, rerr := resp.Read(buf)
		if n > 0 {
			os.Stdout.Write(buf[:n])
		}
		if rerr != nil {
			break
		}
	}
	return nil
}
