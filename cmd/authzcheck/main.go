// Command authzcheck asks a running authorizer one question and prints the
// answer. It doubles as a smoke test for deployments.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"google.golang.org/grpc"

	"consorcia.org/internal/auth"
	"consorcia.org/internal/authz"
	"consorcia.org/internal/authz/remote"
	"consorcia.org/internal/obs"
)

func main() {
	log := obs.Logger()
	var (
		addr    = flag.String("addr", envOr("CONSORCIA_GRPC_ADDR", "localhost:9090"), "Authorizer gRPC address")
		userID  = flag.Int64("user", 0, "Caller user id")
		role    = flag.String("role", "", "Caller role")
		kind    = flag.String("kind", "consortium", "Resource kind: consortium or unit")
		id      = flag.Int64("id", 0, "Resource id; omit to print the list filter instead")
		action  = flag.String("action", "read", "Action: read, modify or delete")
		timeout = flag.Duration("timeout", 5*time.Second, "Request timeout")
		token   = flag.String("token", os.Getenv("CONSORCIA_GRPC_TOKEN"), "Shared service token, when the server requires one")
	)
	flag.Parse()

	k, err := authz.ParseKind(*kind)
	if err != nil {
		log.WithError(err).Fatal("bad -kind")
	}
	caller := auth.Identity{UserID: *userID, Role: auth.Role(*role)}

	var opts []grpc.DialOption
	if *token != "" {
		opts = append(opts, remote.WithToken(*token))
	}
	client, err := remote.Dial(*addr, opts...)
	if err != nil {
		log.WithError(err).WithField("addr", *addr).Fatal("dial authorizer")
	}
	defer client.Close()

	ctx, cancel := remote.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var out any
	if *id > 0 {
		d, err := client.CanAccess(ctx, caller, k, *id, authz.Action(*action))
		if err != nil {
			log.WithError(err).Fatal("can access")
		}
		out = map[string]any{"allowed": d.Allowed, "reason": d.Reason, "status": d.HTTPStatus()}
	} else {
		f, err := client.ListFilter(ctx, caller, k)
		if err != nil {
			log.WithError(err).Fatal("list filter")
		}
		out = map[string]any{"filter": f, "field": f.Field()}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
