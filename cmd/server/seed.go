package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jrsteele09/go-oidc-provider/clients"
	oautherrors "github.com/jrsteele09/go-oidc-provider/internal/errors"
)

var seedFile string

// seedDocument is the clients file read by seed-clients. Each client is
// registered on behalf of its owner, so owner rules such as the trusted
// flag apply as they do over the API.
type seedDocument struct {
	Clients []seedClient `yaml:"clients"`
}

type seedClient struct {
	Owner                string `yaml:"owner"`
	clients.Registration `yaml:",inline"`
}

var seedClientsCmd = &cobra.Command{
	Use:   "seed-clients",
	Short: "Register the clients listed in a YAML file and print their secrets",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if cfg.GetDatabaseDriver() == driverMemory {
			return errors.New("[seed-clients] seeding the memory driver has no lasting effect")
		}
		data, err := os.ReadFile(seedFile)
		if err != nil {
			return errors.Wrapf(err, "[seed-clients] reading %s", seedFile)
		}
		doc, err := parseSeedDocument(data)
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), cfg, true)
		if err != nil {
			return err
		}
		defer a.Close()

		return seedClients(cmd.Context(), cmd.OutOrStdout(), a, doc)
	},
}

func init() {
	seedClientsCmd.Flags().StringVarP(&seedFile, "file", "f", "clients.yaml", "YAML file listing the clients to register")
}

func parseSeedDocument(data []byte) (*seedDocument, error) {
	var doc seedDocument
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&doc); err != nil {
		return nil, errors.Wrap(err, "[parseSeedDocument]")
	}
	for i, c := range doc.Clients {
		if c.Owner == "" {
			return nil, errors.Errorf("[parseSeedDocument] client %d (%s) has no owner", i, c.Name)
		}
	}
	return &doc, nil
}

func seedClients(ctx context.Context, out io.Writer, a *app, doc *seedDocument) error {
	for _, c := range doc.Clients {
		owner, err := a.users.GetByID(ctx, c.Owner)
		if errors.Is(err, oautherrors.ErrUserNotFound) {
			return errors.Errorf("[seedClients] owner %q of %s is not a known user", c.Owner, c.Name)
		}
		if err != nil {
			return errors.Wrap(err, "[seedClients]")
		}
		client, secret, err := a.service.RegisterClient(ctx, c.Registration, owner)
		if err != nil {
			return errors.Wrapf(err, "[seedClients] registering %s", c.Name)
		}
		fmt.Fprintf(out, "%s\tclient_id=%s\tclient_secret=%s\n", client.Name, client.ClientID, secret)
	}
	return nil
}
