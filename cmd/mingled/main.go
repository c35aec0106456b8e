// mingled runs the client core standalone: it hydrates the profile's
// persisted state, connects the realtime session, and replays any pending
// work. Useful for poking at a profile without the mobile host.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/fx"

	"github.com/mingleapp/mingle/internal/app"
	"github.com/mingleapp/mingle/internal/appdir"
	"github.com/mingleapp/mingle/internal/request"
)

func main() {
	profileFlag := flag.String("profile", appdir.DefaultProfile, "profile name")
	offlineFlag := flag.Bool("offline", false, "start without network connectivity")
	flag.Parse()

	if err := appdir.ValidateProfile(*profileFlag); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	core := fx.New(
		app.Module(app.Params{
			Profile: *profileFlag,
			Refresh: envRefresh,
			Online:  !*offlineFlag,
		}),
	)

	core.Run()
}

// envRefresh hands out credentials from the environment. A real host wires
// its auth flow here instead.
func envRefresh(ctx context.Context, refreshToken string) (request.Credentials, error) {
	access := os.Getenv("MINGLE_ACCESS_TOKEN")
	if access == "" {
		return request.Credentials{}, fmt.Errorf("MINGLE_ACCESS_TOKEN not set")
	}
	return request.Credentials{
		AccessToken:  access,
		RefreshToken: refreshToken,
	}, nil
}
