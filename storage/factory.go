package storage

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ruteri/threshold-curator-kms/interfaces"
)

// StorageBackendFactory creates storage backends from URI strings and manages
// multi-backend configurations for replication across curators.
type StorageBackendFactory struct {
	log *slog.Logger
}

// NewStorageBackendFactory creates a new factory instance.
func NewStorageBackendFactory(logger *slog.Logger) *StorageBackendFactory {
	return &StorageBackendFactory{log: logger}
}

// StorageBackendFor creates a storage backend from a location. See
// interfaces.StorageBackendLocation for the accepted URI forms.
func (sf *StorageBackendFactory) StorageBackendFor(loc interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	switch loc.Scheme {
	case interfaces.SchemeFile:
		return sf.createFileBackend(loc)
	case interfaces.SchemeS3:
		return sf.createS3Backend(loc)
	case interfaces.SchemeIPFS:
		return sf.createIPFSBackend(loc)
	case interfaces.SchemeVault:
		return sf.createVaultBackend(loc)
	default:
		return nil, fmt.Errorf("%w: unsupported backend scheme %q", interfaces.ErrInvalidLocationURI, loc.Scheme)
	}
}

// CreateMultiBackend creates a replicating backend from a list of locations.
// Locations that fail to produce a backend are logged and skipped. The
// optional "replicas" parameter of the first location sets the minimum
// replica count. Returns an error if no valid backends could be created.
func (sf *StorageBackendFactory) CreateMultiBackend(locations []interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	if len(locations) == 0 {
		return nil, fmt.Errorf("%w: no storage locations", interfaces.ErrInvalidLocationURI)
	}
	replicas, err := locations[0].IntParam("replicas", 0)
	if err != nil {
		return nil, err
	}

	backends := make([]interfaces.StorageBackend, 0, len(locations))
	for _, loc := range locations {
		backend, err := sf.StorageBackendFor(loc)
		if err != nil {
			sf.log.Warn("Failed to create storage backend",
				"err", err,
				slog.String("location", loc.String()))
			continue
		}
		backends = append(backends, backend)
	}

	if len(backends) == 0 {
		return nil, fmt.Errorf("%w: no valid storage backends created", interfaces.ErrInvalidLocationURI)
	}

	multi := NewMultiStorageBackend(backends, sf.log)
	if replicas > 0 {
		multi.WithMinReplicas(replicas)
	}
	return multi, nil
}

// ParseLocations converts raw URIs into storage locations.
func ParseLocations(uris []string) ([]interfaces.StorageBackendLocation, error) {
	locations := make([]interfaces.StorageBackendLocation, 0, len(uris))
	for _, uri := range uris {
		loc, err := interfaces.NewStorageBackendLocation(uri)
		if err != nil {
			return nil, err
		}
		locations = append(locations, loc)
	}
	return locations, nil
}

func (sf *StorageBackendFactory) createFileBackend(loc interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	sf.log.Debug("Creating file backend", slog.String("location", loc.String()))

	root := loc.Root()
	if root == "" {
		return nil, fmt.Errorf("%w: empty path in file location %s", interfaces.ErrInvalidLocationURI, loc)
	}
	return NewFileBackend(root, sf.log)
}

func (sf *StorageBackendFactory) createS3Backend(loc interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	sf.log.Debug("Creating S3 backend", slog.String("location", loc.String()))

	if loc.Host == "" {
		return nil, fmt.Errorf("%w: missing bucket in S3 location", interfaces.ErrInvalidLocationURI)
	}

	cfg := S3Config{
		Bucket:    loc.Host,
		Prefix:    loc.Root(),
		Region:    loc.Param("region"),
		Endpoint:  loc.Param("endpoint"),
		PathStyle: loc.BoolParam("path_style"),
	}
	cfg.AccessKey, cfg.SecretKey = loc.Credentials()

	return NewS3Backend(cfg, sf.log)
}

func (sf *StorageBackendFactory) createIPFSBackend(loc interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	sf.log.Debug("Creating IPFS backend", slog.String("location", loc.String()))

	host, port, found := strings.Cut(loc.Host, ":")
	if host == "" {
		return nil, fmt.Errorf("%w: missing host in IPFS location", interfaces.ErrInvalidLocationURI)
	}
	if !found || port == "" {
		port = "5001"
	}

	timeout, err := loc.DurationParam("timeout", 30*time.Second)
	if err != nil {
		return nil, err
	}

	return NewIPFSBackend(host, port, loc.Root(), timeout, sf.log)
}

func (sf *StorageBackendFactory) createVaultBackend(loc interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	sf.log.Debug("Creating Vault backend", slog.String("location", loc.String()))

	if loc.Host == "" {
		return nil, fmt.Errorf("%w: missing host in Vault location", interfaces.ErrInvalidLocationURI)
	}

	scheme := "https"
	if v := loc.Param("tls"); v == "false" || v == "0" {
		scheme = "http"
	}

	cfg := VaultConfig{
		Address:  fmt.Sprintf("%s://%s", scheme, loc.Host),
		CACert:   loc.Param("ca_cert"),
		Insecure: loc.BoolParam("insecure"),
	}
	cfg.MountPath, cfg.DataPath = loc.VaultPath()
	cfg.Token, _ = loc.Credentials()

	return NewVaultBackend(cfg, sf.log)
}
