package interfaces

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrContentNotFound is returned when requested content cannot be found in the storage backend.
	ErrContentNotFound = errors.New("content not found")

	// ErrBackendUnavailable is returned when a storage backend is not accessible.
	ErrBackendUnavailable = errors.New("storage backend unavailable")

	// ErrInvalidLocationURI is returned for a malformed or unsupported
	// storage location. See NewStorageBackendLocation for the accepted forms.
	ErrInvalidLocationURI = errors.New("invalid storage location URI")
)

// ContentID is the SHA-256 of a stored object. It is hex encoded in text and
// JSON, which is how link and data records refer to archived content.
type ContentID [32]byte

// ComputeID returns the content ID of data.
func ComputeID(data []byte) ContentID {
	return sha256.Sum256(data)
}

// ParseContentID decodes a hex content ID, with or without a 0x prefix.
func ParseContentID(s string) (ContentID, error) {
	var id ContentID
	err := id.UnmarshalText([]byte(s))
	return id, err
}

func (id ContentID) String() string {
	return hex.EncodeToString(id[:])
}

func (id ContentID) IsZero() bool { return id == ContentID{} }

func (id ContentID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *ContentID) UnmarshalText(text []byte) error {
	clean := strings.TrimPrefix(string(text), "0x")
	if len(clean) != hex.EncodedLen(len(id)) {
		return fmt.Errorf("invalid content id length %d", len(clean))
	}
	if _, err := hex.Decode(id[:], []byte(clean)); err != nil {
		return fmt.Errorf("invalid content id: %w", err)
	}
	return nil
}

// ContentType is a storage namespace. Nothing a backend stores is secret:
// ciphertext is sealed under an epoch data key and every record type only
// carries public, hash-linked chain data.
type ContentType int

const (
	// CiphertextType holds signed ciphertext streams produced by the codec.
	CiphertextType ContentType = iota
	// LinkRecordType holds public chain links.
	LinkRecordType
	// AuditType holds break-the-glass audit entries.
	AuditType
	// DataRefType holds records that bind stored ciphertext to the epoch
	// whose key protects it.
	DataRefType
)

func (ct ContentType) String() string {
	switch ct {
	case CiphertextType:
		return "ciphertext"
	case LinkRecordType:
		return "links"
	case AuditType:
		return "audit"
	case DataRefType:
		return "refs"
	default:
		return "unknown"
	}
}

// AllContentTypes lists every namespace a backend must support.
var AllContentTypes = []ContentType{CiphertextType, LinkRecordType, AuditType, DataRefType}

// Scheme names a storage backend kind in a location URI.
type Scheme string

const (
	SchemeFile  Scheme = "file"
	SchemeS3    Scheme = "s3"
	SchemeIPFS  Scheme = "ipfs"
	SchemeVault Scheme = "vault"
)

// DefaultRoot is the namespace used inside a shared backend (S3 prefix,
// IPFS MFS directory, Vault data path) when the location names none.
const DefaultRoot = "threshold-curator-kms"

// defaultVaultMount is the KV v2 mount Vault enables out of the box.
const defaultVaultMount = "secret"

// StorageBackendLocation is a parsed storage location:
//
//	file:///var/lib/curator
//	s3://[access:secret@]bucket[/prefix]?region=..&endpoint=..&path_style=true
//	ipfs://host[:port][/root]?timeout=30s
//	vault://[token@]host:port[/mount[/path]]?tls=false&ca_cert=..&insecure=true
//
// Any location may carry replicas=N, read by the multi-backend.
type StorageBackendLocation struct {
	Scheme Scheme
	Host   string
	Path   string
	Query  url.Values
	User   *url.Userinfo
}

// NewStorageBackendLocation parses and validates a location URI.
func NewStorageBackendLocation(uri string) (StorageBackendLocation, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return StorageBackendLocation{}, fmt.Errorf("%w: %v", ErrInvalidLocationURI, err)
	}

	scheme := Scheme(strings.ToLower(parsed.Scheme))
	switch scheme {
	case SchemeFile, SchemeS3, SchemeIPFS, SchemeVault:
	default:
		return StorageBackendLocation{}, fmt.Errorf("%w: unsupported storage scheme %q", ErrInvalidLocationURI, parsed.Scheme)
	}

	return StorageBackendLocation{
		Scheme: scheme,
		Host:   parsed.Host,
		Path:   parsed.Path,
		Query:  parsed.Query(),
		User:   parsed.User,
	}, nil
}

// String returns the location with any credentials masked, so it is safe
// to log.
func (loc StorageBackendLocation) String() string {
	u := url.URL{Scheme: string(loc.Scheme), Host: loc.Host, Path: loc.Path, RawQuery: loc.Query.Encode()}
	if loc.User != nil {
		u.User = url.User("***")
	}
	return u.String()
}

// Credentials returns the user part of the URI: access and secret key for
// S3, the token for Vault.
func (loc StorageBackendLocation) Credentials() (user, secret string) {
	if loc.User == nil {
		return "", ""
	}
	secret, _ = loc.User.Password()
	return loc.User.Username(), secret
}

// Root returns where the backend keeps its namespaces: the directory for
// file locations, otherwise the path inside the remote store, defaulting to
// DefaultRoot.
func (loc StorageBackendLocation) Root() string {
	if loc.Scheme == SchemeFile {
		if loc.Host == "" {
			return loc.Path
		}
		return loc.Host + "/" + strings.TrimPrefix(loc.Path, "/")
	}
	if root := strings.Trim(loc.Path, "/"); root != "" {
		return root
	}
	return DefaultRoot
}

// VaultPath splits a vault location path into the KV mount and the data
// path below it.
func (loc StorageBackendLocation) VaultPath() (mount, dataPath string) {
	mount, dataPath, _ = strings.Cut(strings.Trim(loc.Path, "/"), "/")
	if mount == "" {
		mount = defaultVaultMount
	}
	if dataPath == "" {
		dataPath = DefaultRoot
	}
	return mount, dataPath
}

func (loc StorageBackendLocation) Param(name string) string {
	return loc.Query.Get(name)
}

// BoolParam reports whether a flag parameter is set to true, 1 or yes.
func (loc StorageBackendLocation) BoolParam(name string) bool {
	switch strings.ToLower(loc.Query.Get(name)) {
	case "true", "1", "yes":
		return true
	}
	return false
}

// IntParam returns an integer parameter, or def when absent.
func (loc StorageBackendLocation) IntParam(name string, def int) (int, error) {
	v := loc.Query.Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s parameter %q", ErrInvalidLocationURI, name, v)
	}
	return n, nil
}

// DurationParam returns a duration parameter, or def when absent.
func (loc StorageBackendLocation) DurationParam(name string, def time.Duration) (time.Duration, error) {
	v := loc.Query.Get(name)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%w: invalid %s parameter %q", ErrInvalidLocationURI, name, v)
	}
	return d, nil
}

// StorageBackend is content-addressed storage. Curators replicate
// ciphertext and public chain records through it; shares and secrets are
// never stored.
type StorageBackend interface {
	Fetch(ctx context.Context, id ContentID, contentType ContentType) ([]byte, error)

	// Store saves data and returns its content ID. Storing the same data
	// twice yields the same ID.
	Store(ctx context.Context, data []byte, contentType ContentType) (ContentID, error)

	Available(ctx context.Context) bool

	// Name identifies the backend in logs.
	Name() string

	// LocationURI identifies the backend without its credentials.
	LocationURI() string
}

// StorageBackendFactory turns locations into backends.
type StorageBackendFactory interface {
	StorageBackendFor(loc StorageBackendLocation) (StorageBackend, error)

	// CreateMultiBackend replicates over every usable location.
	CreateMultiBackend(locs []StorageBackendLocation) (StorageBackend, error)
}
