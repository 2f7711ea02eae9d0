// Command organcore drives the organ registry from the command line: seed
// demo data, register and list entities, run matching and allocate organs
// against the store selected by the environment.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"organcore/internal/blob"
	"organcore/internal/registry"
)

var exitFunc = os.Exit

func main() {
	code := cli(os.Args[1:], os.Stdout, os.Stderr)
	exitFunc(code)
}

func usage(stderr io.Writer) {
	fmt.Fprintln(stderr, `usage: organcore <command> [flags]

commands:
  seed                          load demo hospitals, patients and donors
  patients | donors | hospitals | matches
                                list records
  match     -patient <id>       rank donors for a patient
  allocate  -patient <id> -donor <id> -hospital <id>
                                create a match
  verify    -donor <id> -hospital <id> -decision VERIFIED|REJECTED
                                decide donor verification
  auth      -hospital <id> -credential <secret>
                                authenticate a hospital
  set-status -patient <id> -status <status>
                                administrative patient status override
  remove-organ -donor <id> -organ <organ>
                                withdraw an offered organ
  clear                         wipe patients, donors and matches`)
}

func cli(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return 2
	}
	command, rest := args[0], args[1:]

	logger := slog.New(slog.NewTextHandler(stderr, nil))
	store, cleanup, err := registry.OpenRecordStore()
	if err != nil {
		fmt.Fprintf(stderr, "open store: %v\n", err)
		return 1
	}
	defer func() { _ = cleanup() }()

	opts := []registry.Option{registry.WithLogger(slogAdapter{logger})}
	if os.Getenv("ORGANCORE_BLOB_DRIVER") != "" {
		blobs, err := blob.Open(context.Background())
		if err != nil {
			fmt.Fprintf(stderr, "open blob store: %v\n", err)
			return 1
		}
		opts = append(opts, registry.WithBlobStore(blobs))
	}
	svc := registry.NewService(store, opts...)

	ctx := context.Background()
	out, err := dispatch(ctx, svc, command, rest, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", command, err)
		return 1
	}
	if out != nil {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			fmt.Fprintf(stderr, "encode output: %v\n", err)
			return 1
		}
	}
	return 0
}

func dispatch(ctx context.Context, svc *registry.Service, command string, args []string, stderr io.Writer) (any, error) {
	switch command {
	case "seed":
		if err := svc.Seed(ctx); err != nil {
			return nil, err
		}
		return map[string]string{"status": "seeded"}, nil
	case "patients":
		return svc.ListPatients(ctx)
	case "donors":
		return svc.ListDonors(ctx)
	case "hospitals":
		return svc.ListHospitals(ctx)
	case "matches":
		return svc.ListMatches(ctx)
	case "match":
		fs := flag.NewFlagSet(command, flag.ContinueOnError)
		fs.SetOutput(stderr)
		patient := fs.String("patient", "", "patient ID")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		return svc.RunMatching(ctx, *patient)
	case "allocate":
		fs := flag.NewFlagSet(command, flag.ContinueOnError)
		fs.SetOutput(stderr)
		patient := fs.String("patient", "", "patient ID")
		donor := fs.String("donor", "", "donor ID")
		hospital := fs.String("hospital", "", "approving hospital ID")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		return svc.Allocate(ctx, *patient, *donor, *hospital)
	case "verify":
		fs := flag.NewFlagSet(command, flag.ContinueOnError)
		fs.SetOutput(stderr)
		donor := fs.String("donor", "", "donor ID")
		hospital := fs.String("hospital", "", "deciding hospital ID")
		decision := fs.String("decision", "", "VERIFIED or REJECTED")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		return svc.DecideDonorVerification(ctx, *donor, *hospital, *decision)
	case "auth":
		fs := flag.NewFlagSet(command, flag.ContinueOnError)
		fs.SetOutput(stderr)
		hospital := fs.String("hospital", "", "hospital ID")
		credential := fs.String("credential", "", "plaintext credential")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		return svc.AuthenticateHospital(ctx, *hospital, registry.HashCredential(*credential))
	case "set-status":
		fs := flag.NewFlagSet(command, flag.ContinueOnError)
		fs.SetOutput(stderr)
		patient := fs.String("patient", "", "patient ID")
		status := fs.String("status", "", "new status")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		return svc.SetPatientStatus(ctx, *patient, *status)
	case "remove-organ":
		fs := flag.NewFlagSet(command, flag.ContinueOnError)
		fs.SetOutput(stderr)
		donor := fs.String("donor", "", "donor ID")
		organ := fs.String("organ", "", "organ to withdraw")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		return svc.RemoveDonorOrgan(ctx, *donor, *organ)
	case "clear":
		return svc.ClearAll(ctx)
	default:
		usage(stderr)
		return nil, fmt.Errorf("unknown command %q", command)
	}
}

// slogAdapter bridges slog to the service logger interface.
type slogAdapter struct {
	l *slog.Logger
}

func (a slogAdapter) Debug(msg string, args ...any) { a.l.Debug(msg, args...) }
func (a slogAdapter) Info(msg string, args ...any)  { a.l.Info(msg, args...) }
func (a slogAdapter) Warn(msg string, args ...any)  { a.l.Warn(msg, args...) }
func (a slogAdapter) Error(msg string, args ...any) { a.l.Error(msg, args...) }
