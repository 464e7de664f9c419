/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package cli

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/nbrb/fabric-enroll/pkg/wallet"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	yaml "gopkg.in/yaml.v2"
)

// identitySummary is what list and show print of an identity. It never
// includes the private key. Creator is the base64 msp.SerializedIdentity
// peers see as the transaction creator and CreatorHash its SHA-256.
type identitySummary struct {
	Label       string `yaml:"label"`
	MspID       string `yaml:"mspId"`
	Type        string `yaml:"type"`
	Version     int    `yaml:"version"`
	Subject     string `yaml:"subject,omitempty"`
	Issuer      string `yaml:"issuer,omitempty"`
	Serial      string `yaml:"serial,omitempty"`
	NotBefore   string `yaml:"notBefore,omitempty"`
	NotAfter    string `yaml:"notAfter,omitempty"`
	Creator     string `yaml:"creator,omitempty"`
	CreatorHash string `yaml:"creatorHash,omitempty"`
	Error       string `yaml:"error,omitempty"`
}

func newWalletCommand() *cobra.Command {
	var location string

	cmd := &cobra.Command{
		Use:   "wallet",
		Short: "Inspect and manage the identities in a wallet",
	}
	cmd.PersistentFlags().StringVarP(&location, "wallet", "w", "",
		"wallet location: a path, file://, vault:// or s3:// URI")
	cmd.MarkPersistentFlagRequired("wallet") // nolint: errcheck

	open := func() (*wallet.Wallet, error) {
		return wallet.Open(location)
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "list the identities in the wallet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			wlt, err := open()
			if err != nil {
				return err
			}
			return listIdentities(cmd, wlt)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show <label>",
		Short: "show an identity without its private key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wlt, err := open()
			if err != nil {
				return err
			}
			id, err := wlt.Get(args[0])
			if err != nil {
				return errors.WithMessagef(err, "reading identity [%s] failed", args[0])
			}
			out, err := yaml.Marshal(summarize(args[0], id))
			if err != nil {
				return errors.Wrap(err, "formatting identity failed")
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <label>",
		Short: "remove an identity from the wallet",
		Long: `remove deletes the identity stored under the label. The next enroll of that
user contacts the CA again and needs a valid enrollment secret.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wlt, err := open()
			if err != nil {
				return err
			}
			if err := wlt.Remove(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed identity \"%s\" from the wallet\n", args[0])
			return nil
		},
	})

	return cmd
}

func listIdentities(cmd *cobra.Command, wlt *wallet.Wallet) error {
	labels, err := wlt.List()
	if err != nil {
		return err
	}
	if len(labels) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "The wallet is empty")
		return nil
	}

	tabData := make([][]string, 0, len(labels))
	for i, label := range labels {
		var s *identitySummary
		id, err := wlt.Get(label)
		if err != nil {
			s = &identitySummary{Label: label, Error: err.Error()}
		} else {
			s = summarize(label, id)
		}
		status := "valid"
		switch {
		case s.Error != "":
			status = s.Error
		case s.NotAfter != "" && expired(s.NotAfter):
			status = "expired"
		}
		tabData = append(tabData, []string{strconv.Itoa(i + 1), s.Label, s.MspID, s.Type, s.Subject, s.NotAfter, status})
	}

	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetHeader([]string{"#", "Label", "MSP ID", "Type", "Subject", "Not After", "Status"})
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.AppendBulk(tabData)
	table.Render()
	return nil
}

func summarize(label string, id wallet.Identity) *identitySummary {
	x509ID, ok := id.(*wallet.X509Identity)
	if !ok {
		return &identitySummary{Label: label, Error: fmt.Sprintf("unsupported identity %T", id)}
	}

	s := &identitySummary{
		Label:   label,
		MspID:   x509ID.MspID,
		Type:    x509ID.IDType,
		Version: x509ID.Version,
	}
	cert, err := x509ID.ParseCertificate()
	if err != nil {
		s.Error = err.Error()
		return s
	}
	s.Subject = cert.Subject.String()
	s.Issuer = cert.Issuer.String()
	s.Serial = cert.SerialNumber.String()
	s.NotBefore = cert.NotBefore.UTC().Format(time.RFC3339)
	s.NotAfter = cert.NotAfter.UTC().Format(time.RFC3339)

	creator, err := x509ID.Serialize()
	if err != nil {
		s.Error = err.Error()
		return s
	}
	digest := sha256.Sum256(creator)
	s.Creator = base64.StdEncoding.EncodeToString(creator)
	s.CreatorHash = hex.EncodeToString(digest[:])
	return s
}

func expired(notAfter string) bool {
	t, err := time.Parse(time.RFC3339, notAfter)
	return err == nil && time.Now().After(t)
}
