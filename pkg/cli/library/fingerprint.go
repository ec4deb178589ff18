/* Copyright 2025 Dnote Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package library

import (
	"encoding/hex"
	"encoding/json"
	"hash"
	"io"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"
)

const fingerprintPrefix = "b2:"

// Hash domains keep a record and a file with identical bytes from sharing
// a fingerprint
const (
	domainPaper      = "papercli/paper/v1"
	domainCollection = "papercli/collection/v1"
	domainFile       = "papercli/file/v1"
)

func newHash(domain string) hash.Hash {
	h, err := blake2b.New256(nil)
	if err != nil {
		// only reachable with an oversized key
		panic(errors.Wrap(err, "initializing blake2b"))
	}
	h.Write([]byte(domain))
	h.Write([]byte{0x00})

	return h
}

func sum(h hash.Hash) string {
	return fingerprintPrefix + hex.EncodeToString(h.Sum(nil))
}

func fingerprintJSON(domain string, v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", errors.Wrap(err, "serializing canonical form")
	}

	h := newHash(domain)
	h.Write(b)

	return sum(h), nil
}

// Fingerprint returns the content fingerprint of the record. Timestamps and
// row ids are not part of it.
func (r Record) Fingerprint() (string, error) {
	fields := r.Fields()
	canonical := make([][2]string, 0, len(fields))
	for _, f := range fields {
		canonical = append(canonical, [2]string{f.Name, f.Value})
	}

	return fingerprintJSON(domainPaper, canonical)
}

// Fingerprint returns the content fingerprint of the collection
func (c CollectionRecord) Fingerprint() (string, error) {
	return fingerprintJSON(domainCollection, [2]string{canonicalString(c.Name), canonicalString(c.Description)})
}

// FileHasher computes a file fingerprint from streamed content
type FileHasher struct {
	h hash.Hash
}

// NewFileHasher returns a hasher for file content
func NewFileHasher() *FileHasher {
	return &FileHasher{h: newHash(domainFile)}
}

// Write adds content to the hash
func (f *FileHasher) Write(p []byte) (int, error) {
	return f.h.Write(p)
}

// Fingerprint returns the fingerprint of the content written so far
func (f *FileHasher) Fingerprint() string {
	return sum(f.h)
}

// HashReader returns the fingerprint of everything read from r
func HashReader(r io.Reader) (string, error) {
	h := NewFileHasher()
	if _, err := io.Copy(h, r); err != nil {
		return "", errors.Wrap(err, "reading content")
	}

	return h.Fingerprint(), nil
}

// HashFile returns the fingerprint of the file at the given path
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()

	fp, err := HashReader(f)
	if err != nil {
		return "", errors.Wrapf(err, "hashing %s", path)
	}

	return fp, nil
}
