// internal/contactctl/contactctl.go
package contactctl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dalemusser/portfolio/internal/formclient"
	"github.com/dalemusser/portfolio/version"
	"github.com/spf13/pflag"
)

// Run is the entrypoint for the contactctl binary. args exclude the binary
// name. It returns a process exit code; callers should os.Exit(Run(...)).
func Run(binName string, args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		usage(binName, stderr)
		return 1
	}

	switch args[0] {
	case "send":
		return sendCmd(binName, args[1:], stdout, stderr)
	case "version":
		fmt.Fprintln(stdout, version.String())
		return 0
	case "help", "-h", "--help":
		usage(binName, stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command: %q\n\n", args[0])
		usage(binName, stderr)
		return 1
	}
}

func usage(binName string, w io.Writer) {
	fmt.Fprintf(w, "Portfolio contact CLI (%s)\n\n", binName)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintf(w, "  %s send --name <name> --email <email> --message <text> [--endpoint <url>]\n", binName)
	fmt.Fprintf(w, "  %s version\n\n", binName)
	fmt.Fprintln(w, "Example:")
	fmt.Fprintf(w, "  %s send --endpoint https://me.example/api/contact --name Jane --email jane@x.com --message Hi\n", binName)
}

func sendCmd(binName string, args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("send", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	endpoint := fs.String("endpoint", "http://localhost:8080/api/contact", "contact endpoint URL")
	name := fs.String("name", "", "your name")
	email := fs.String("email", "", "your email address (used as Reply-To)")
	message := fs.String("message", "", "message text")
	timeout := fs.Duration("timeout", 60*time.Second, "overall request timeout")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: %s send [flags]\n", binName)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 1
	}

	form := formclient.New(*endpoint, formclient.WithHTTPClient(&http.Client{}))
	form.SetFields(formclient.Fields{Name: *name, Email: *email, Message: *message})

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	err := form.Submit(ctx)
	if err != nil {
		fmt.Fprintln(stderr, form.Banner())
		var se *formclient.StatusError
		if !errors.As(err, &se) && !errors.Is(err, formclient.ErrMissingFields) {
			fmt.Fprintln(stderr, "error:", err)
		}
		return 1
	}
	fmt.Fprintln(stdout, form.Banner())
	return 0
}
