// Package main generates the PKI of a POSVault deployment: a CA, the server
// certificate and a client certificate for the owner principal, written to
// the "certs" directory by default.
package main

import (
	"flag"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/phessophissy/POSVault/internal/certgen"
)

const caValidity = 10 * 365 * 24 * time.Hour

func main() {
	dir := flag.String("dir", "certs", "output directory")
	owner := flag.String("owner", "owner", "owner principal (client certificate CN)")
	hosts := flag.String("hosts", "localhost,127.0.0.1", "comma-separated server host names and IPs")
	flag.Parse()

	if err := run(*dir, *owner, strings.Split(*hosts, ",")); err != nil {
		log.Fatalf("generate certificates: %v", err)
	}
	fmt.Printf("Certificates generated into %s\n", *dir)
}

// run writes ca.{crt,key}, server.{crt,key} and client.{crt,key} into dir.
func run(dir, owner string, hosts []string) error {
	caCert, caKey, err := certgen.GenerateCA("POSVault CA", caValidity)
	if err != nil {
		return err
	}
	caKeyPEM, err := certgen.EncodeKey(caKey)
	if err != nil {
		return err
	}
	if err := certgen.WritePair(filepath.Join(dir, "ca.crt"), filepath.Join(dir, "ca.key"), certgen.EncodeCertificate(caCert), caKeyPEM); err != nil {
		return err
	}

	serverCert, serverKey, err := certgen.GenerateServerCertificate(hosts, caCert, caKey)
	if err != nil {
		return err
	}
	if err := certgen.WritePair(filepath.Join(dir, "server.crt"), filepath.Join(dir, "server.key"), serverCert, serverKey); err != nil {
		return err
	}

	clientCert, clientKey, err := certgen.GenerateUserCertificate(owner, caCert, caKey)
	if err != nil {
		return err
	}
	return certgen.WritePair(filepath.Join(dir, "client.crt"), filepath.Join(dir, "client.key"), clientCert, clientKey)
}
