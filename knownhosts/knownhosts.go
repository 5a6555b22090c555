// Package knownhosts implements the host-key repository spec.md §4.6
// describes: an OpenSSH known_hosts-compatible text file recording which
// host keys a client has already accepted, supporting both plaintext and
// HMAC-SHA-1 hashed host entries.
//
// There is no direct teacher analogue for this file format (blitter.com/
// go/xs trusts host keys out of band via hkexauth.go's AuthUserByToken
// flow rather than a persisted repository), so the record layout and
// hashing scheme are grounded directly on spec.md §4.6 and cross-checked
// against the vngx-jsch HashedHostKey concept the original implementation
// used. The atomic load-modify-rewrite persistence pattern (temp file +
// rename) is grounded on xspasswd's record rewrite in
// blitter.com/go/xs/xspasswd/xspasswd.go. Comment and blank lines are
// skipped on load and are not written back when the file is rewritten.
package knownhosts

import (
	"bufio"
	"bytes"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// CheckResult is the outcome of checking a host key against a
// Repository, spec.md §4.6.
type CheckResult int

const (
	// OK means the repository has this exact host/key-type/key-blob
	// combination recorded.
	OK CheckResult = iota
	// NotIncluded means no record exists for this host and key type.
	NotIncluded
	// Changed means a record exists for this host and key type but the
	// key blob differs — a signal of possible impersonation.
	Changed
)

func (r CheckResult) String() string {
	switch r {
	case OK:
		return "OK"
	case NotIncluded:
		return "NOT_INCLUDED"
	case Changed:
		return "CHANGED"
	default:
		return "UNKNOWN"
	}
}

// ErrInvalidEntry is returned when a known_hosts line cannot be parsed.
var ErrInvalidEntry = errors.New("knownhosts: invalid entry")

// Record is one known_hosts line: either a plaintext comma-separated
// host-pattern list, or a single hashed host (salt + HMAC-SHA-1 digest),
// per OpenSSH's known_hosts format.
type Record struct {
	// Hosts holds the plaintext host patterns this record matches
	// (nil when Hashed is true).
	Hosts []string
	// Hashed is true for a "|1|salt|hash" entry.
	Hashed bool
	Salt   []byte // only set when Hashed
	Digest []byte // only set when Hashed; HMAC-SHA-1(salt, host)

	KeyType string
	KeyBlob []byte // the raw base64-decoded public key blob
}

// matches reports whether this record was written for host. Comparison
// is case-insensitive on the host name, spec.md §3/§4.6: the hashed
// digest is computed over the lowercased query, and plaintext entries
// are compared lowercased too (entries written by Add are already
// lowercased, but files edited or copied from elsewhere may not be).
func (r *Record) matches(host string) bool {
	host = normalizeHost(host)
	if r.Hashed {
		mac := hmac.New(sha1.New, r.Salt)
		mac.Write([]byte(host))
		return hmac.Equal(mac.Sum(nil), r.Digest)
	}
	for _, h := range r.Hosts {
		if normalizeHost(h) == host {
			return true
		}
	}
	return false
}

// normalizeHost lowercases a host name for matching/storage, spec.md
// §3/§4.6.
func normalizeHost(host string) string {
	return strings.ToLower(host)
}

// stripBracketedHost strips the OpenSSH "[name]:port" bracket form down
// to name, reporting whether host was in that form at all. spec.md
// §4.6 requires retrying a failed lookup against the stripped name.
func stripBracketedHost(host string) (string, bool) {
	if !strings.HasPrefix(host, "[") {
		return "", false
	}
	end := strings.Index(host, "]")
	if end < 0 {
		return "", false
	}
	return host[1:end], true
}

func (r *Record) marshalHostField() string {
	if r.Hashed {
		return "|1|" + base64.StdEncoding.EncodeToString(r.Salt) + "|" + base64.StdEncoding.EncodeToString(r.Digest)
	}
	return strings.Join(r.Hosts, ",")
}

// Repository is a loaded known_hosts file plus the in-memory records
// parsed from it, per spec.md §4.6's Known-hosts-repository type.
type Repository struct {
	path    string
	records []*Record
}

// Open loads the known_hosts file at path, creating an empty in-memory
// repository if the file does not yet exist (it is created on the next
// Add or Remove).
func Open(path string) (*Repository, error) {
	repo := &Repository{path: path}
	f, err := os.Open(path) // nolint: gosec
	if os.IsNotExist(err) {
		return repo, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := parseAll(f)
	if err != nil {
		return nil, err
	}
	repo.records = records
	return repo, nil
}

func parseAll(r io.Reader) ([]*Record, error) {
	var records []*Record
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rec, err := parseLine(line)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func parseLine(line string) (*Record, error) {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return nil, ErrInvalidEntry
	}
	hostField, keyType, keyB64 := fields[0], fields[1], fields[2]

	keyBlob, err := base64.StdEncoding.DecodeString(keyB64)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	rec := &Record{KeyType: keyType, KeyBlob: keyBlob}
	if strings.HasPrefix(hostField, "|1|") {
		parts := strings.Split(hostField, "|")
		if len(parts) != 4 {
			return nil, ErrInvalidEntry
		}
		salt, err := base64.StdEncoding.DecodeString(parts[2])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
		}
		digest, err := base64.StdEncoding.DecodeString(parts[3])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
		}
		rec.Hashed = true
		rec.Salt = salt
		rec.Digest = digest
	} else {
		rec.Hosts = strings.Split(hostField, ",")
	}
	return rec, nil
}

// Check reports whether host/keyType/keyBlob is OK, NotIncluded, or
// Changed relative to the repository's current records, per spec.md
// §4.6. If host carries no match in its literal form and is written as
// a bracketed "[name]:port", the lookup is retried against the
// stripped name.
func (repo *Repository) Check(host, keyType string, keyBlob []byte) CheckResult {
	if result := repo.checkOnce(host, keyType, keyBlob); result != NotIncluded {
		return result
	}
	if stripped, ok := stripBracketedHost(host); ok {
		return repo.checkOnce(stripped, keyType, keyBlob)
	}
	return NotIncluded
}

// checkOnce scans every record for host once, rather than deciding on
// the first host/key-type match: a key-rotation state with a stale
// record followed by a current one must still report OK once any
// record has that disposition, never short-circuiting to Changed on
// an earlier, superseded record.
func (repo *Repository) checkOnce(host, keyType string, keyBlob []byte) CheckResult {
	sawHostAndType := false
	for _, r := range repo.records {
		if !r.matches(host) {
			continue
		}
		if r.KeyType != keyType {
			continue
		}
		sawHostAndType = true
		if bytes.Equal(r.KeyBlob, keyBlob) {
			return OK
		}
	}
	if sawHostAndType {
		return Changed
	}
	return NotIncluded
}

// GetHostKeys returns every record matching host, across all key types.
func (repo *Repository) GetHostKeys(host string) []*Record {
	var out []*Record
	for _, r := range repo.records {
		if r.matches(host) {
			out = append(out, r)
		}
	}
	return out
}

// Add appends a new record for host (plaintext or hashed per hash
// parameter) and persists the repository to disk.
func (repo *Repository) Add(host, keyType string, keyBlob []byte, hash bool) error {
	host = normalizeHost(host)
	rec := &Record{KeyType: keyType, KeyBlob: append([]byte(nil), keyBlob...)}
	if hash {
		salt := make([]byte, sha1.Size)
		if _, err := rand.Read(salt); err != nil {
			return err
		}
		mac := hmac.New(sha1.New, salt)
		mac.Write([]byte(host))
		rec.Hashed = true
		rec.Salt = salt
		rec.Digest = mac.Sum(nil)
	} else {
		rec.Hosts = []string{host}
	}
	repo.records = append(repo.records, rec)
	return repo.save()
}

// Remove deletes every record matching host and persists the result.
func (repo *Repository) Remove(host string) error {
	kept := repo.records[:0]
	for _, r := range repo.records {
		if !r.matches(host) {
			kept = append(kept, r)
		}
	}
	repo.records = kept
	return repo.save()
}

// save atomically rewrites the known_hosts file: write to a temp file
// in the same directory, then rename over the original.
func (repo *Repository) save() error {
	dir := filepath.Dir(repo.path)
	tmp, err := os.CreateTemp(dir, ".knownhosts-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once the rename below succeeds

	w := bufio.NewWriter(tmp)
	for _, r := range repo.records {
		line := r.marshalHostField() + " " + r.KeyType + " " + base64.StdEncoding.EncodeToString(r.KeyBlob) + "\n"
		if _, err := w.WriteString(line); err != nil {
			tmp.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, repo.path)
}
