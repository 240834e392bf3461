// Package secretstore loads the static secrets both gateways need from a
// fixed on-disk directory, once, at startup. Unlike internal/config (which
// layers files and environment variables and may be reloaded), secrets are
// read exactly once and held read-only for the life of the process — see
// spec.md §5, "Process-wide logger and static secrets are initialized once
// at startup and read-only thereafter."
package secretstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Cloud holds the secrets the cloud gateway needs to call the hosted
// inference backend: a static API key, the base endpoint URL, and the
// service-tag → deployment-ID map (spec.md §3 "Service registry").
type Cloud struct {
	APIKey      string
	Endpoint    string
	Deployments map[string]string
}

// HPC holds the secrets the HPC gateway needs to dial the remote head
// node: the SSH private key material, read from the file named by the
// KEY_NAME configuration value.
type HPC struct {
	PrivateKeyPEM []byte
}

const (
	cloudAPIKeyFile      = "cloud_api_key"
	cloudEndpointFile    = "cloud_endpoint"
	cloudDeploymentsFile = "deployments.json"
)

// Deployment resolves service against the deployment map, satisfying
// reqtranslate.CloudRegistry.
func (c *Cloud) Deployment(service string) (string, bool) {
	id, ok := c.Deployments[service]
	return id, ok
}

// LoadCloud reads the cloud secrets from dir. All three files must be
// present; a missing or unreadable file fails startup outright, since the
// gateway cannot serve any request without them.
func LoadCloud(dir string) (*Cloud, error) {
	apiKey, err := readTrimmed(filepath.Join(dir, cloudAPIKeyFile))
	if err != nil {
		return nil, fmt.Errorf("reading cloud API key: %w", err)
	}
	endpoint, err := readTrimmed(filepath.Join(dir, cloudEndpointFile))
	if err != nil {
		return nil, fmt.Errorf("reading cloud endpoint: %w", err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, cloudDeploymentsFile))
	if err != nil {
		return nil, fmt.Errorf("reading deployment map: %w", err)
	}
	deployments := make(map[string]string)
	if err := json.Unmarshal(raw, &deployments); err != nil {
		return nil, fmt.Errorf("parsing deployment map: %w", err)
	}

	return &Cloud{APIKey: apiKey, Endpoint: endpoint, Deployments: deployments}, nil
}

// LoadHPC reads the SSH private key named keyName from dir.
func LoadHPC(dir, keyName string) (*HPC, error) {
	raw, err := os.ReadFile(filepath.Join(dir, keyName))
	if err != nil {
		return nil, fmt.Errorf("reading HPC private key %q: %w", keyName, err)
	}
	return &HPC{PrivateKeyPEM: raw}, nil
}

func readTrimmed(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}
