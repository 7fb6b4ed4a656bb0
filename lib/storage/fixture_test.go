// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"crypto/md5"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/casc/lib/archive"
	"github.com/bureau-foundation/casc/lib/archiveindex"
	"github.com/bureau-foundation/casc/lib/blte"
	"github.com/bureau-foundation/casc/lib/buildconfig"
	"github.com/bureau-foundation/casc/lib/encodingtable"
	"github.com/bureau-foundation/casc/lib/hashkey"
	"github.com/bureau-foundation/casc/lib/rootmanifest"
	"github.com/bureau-foundation/casc/lib/testutil"
)

const (
	fixtureBuildKey   = "0a1b2c3d4e5f60718293a4b5c6d7e8f9"
	fixtureCDNKey     = "ffeeddccbbaa99887766554433221100"
	fixtureCDNArchive = "0017a402f556fbece46c38dc431a2c9b"
	fixtureCDNPath    = "tpr/wow"
)

// install assembles a synthetic installation: one local archive with
// its .idx file, an encoding table, a root manifest, and optionally a
// CDN archive and loose files served over HTTP.
type install struct {
	localArchive []byte
	localRecords []byte

	cdnArchive []byte
	cdnRecords []byte
	cdnCount   int
	cdnLoose   map[string][]byte

	encoding []encodingtable.Record
	root     []rootmanifest.Group

	rootLocale rootmanifest.Locale

	// singleEncodingValue writes "encoding = <ckey>" and stores the
	// table under its content key.
	singleEncodingValue bool
}

func newInstall() *install {
	return &install{cdnLoose: make(map[string][]byte), rootLocale: rootmanifest.LocaleEnUS}
}

// keysFor derives stable content and encoding keys for a label.
func keysFor(label string) (hashkey.ContentKey, hashkey.EncodingKey) {
	return hashkey.ContentKey(md5.Sum([]byte("ckey:" + label))),
		hashkey.EncodingKey(md5.Sum([]byte("ekey:" + label)))
}

// addLocal stores container in the local archive under key.
func (in *install) addLocal(key hashkey.EncodingKey, container []byte) {
	offset := len(in.localArchive)
	in.localArchive = blte.AppendLocalHeader(in.localArchive, key, len(container))
	in.localArchive = append(in.localArchive, container...)
	size := len(in.localArchive) - offset
	in.localRecords = archiveindex.AppendLocalRecord(in.localRecords, key.Truncate(), 0, uint32(offset), uint32(size))
}

// addCDNArchive stores container in the CDN archive under key.
func (in *install) addCDNArchive(key hashkey.EncodingKey, container []byte) {
	offset := len(in.cdnArchive)
	in.cdnArchive = append(in.cdnArchive, container...)
	in.cdnRecords = archiveindex.AppendCDNRecord(in.cdnRecords, key, uint32(len(container)), uint32(offset))
	in.cdnCount++
}

// addCDNLoose serves container as the loose file named by key.
func (in *install) addCDNLoose(key hashkey.EncodingKey, container []byte) {
	in.cdnLoose[key.String()] = container
}

// addAsset maps id to a content key and that content key to key.
func (in *install) addAsset(id uint32, contentKey hashkey.ContentKey, key hashkey.EncodingKey, size int) {
	in.encoding = append(in.encoding, encodingtable.Record{ContentKey: contentKey, Size: uint64(size), Keys: []hashkey.EncodingKey{key}})
	in.root = append(in.root, rootmanifest.Group{
		Locale: in.rootLocale,
		IDs:    []uint32{id},
		Keys:   []hashkey.ContentKey{contentKey},
	})
}

// addLocalAsset stores data as a single raw chunk and maps id to it.
func (in *install) addLocalAsset(id uint32, label string, data []byte) hashkey.EncodingKey {
	contentKey, key := keysFor(label)
	in.addLocal(key, blte.BuildSingle(blte.NormalChunk(data)))
	in.addAsset(id, contentKey, key, len(data))
	return key
}

// write lays the installation out under a new temporary directory and
// returns it.
func (in *install) write(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	rootContent, rootKey := keysFor("root")
	rootFile := rootmanifest.Build(1, mergeGroups(in.root)...)
	in.addLocal(rootKey, blte.BuildSingle(blte.NormalChunk(rootFile)))
	in.encoding = append(in.encoding, encodingtable.Record{ContentKey: rootContent, Size: uint64(len(rootFile)), Keys: []hashkey.EncodingKey{rootKey}})

	encodingContent, encodingKey := keysFor("encoding")
	if in.singleEncodingValue {
		encodingKey = hashkey.EncodingKey(encodingContent)
	}
	encodingFile := encodingtable.Build(in.encoding, nil, nil)
	deflated, err := blte.DeflateChunk(encodingFile)
	if err != nil {
		t.Fatalf("DeflateChunk: %v", err)
	}
	in.addLocal(encodingKey, blte.Build(deflated))

	encodingLine := fmt.Sprintf("encoding = %s %s\n", encodingContent, encodingKey)
	if in.singleEncodingValue {
		encodingLine = fmt.Sprintf("encoding = %s\n", encodingContent)
	}
	buildConfig := "# Build Configuration\n" +
		"root = " + rootContent.String() + "\n" +
		encodingLine +
		"build-name = WOW-56313patch11.0.2_Retail\n"
	cdnConfig := "archives = " + fixtureCDNArchive + "\n"
	buildInfo := "Branch!STRING:0|Build Key!HEX:16|CDN Key!HEX:16|CDN Path!STRING:0|CDN Hosts!STRING:0|Version!STRING:0|Product!STRING:0\n" +
		"us|" + fixtureBuildKey + "|" + fixtureCDNKey + "|" + fixtureCDNPath + "|cdn.invalid|11.0.2.56313|wow\n"

	dataDir := root + "/Data"
	files := make(map[string][]byte)
	files[".build.info"] = []byte(buildInfo)
	files["Data/data/"+archive.FileName(0)] = in.localArchive
	files["Data/data/0000000001.idx"] = archiveindex.BuildLocalFile(in.localRecords)
	files[relative(root, buildconfig.ConfigPath(dataDir, fixtureBuildKey))] = []byte(buildConfig)
	files[relative(root, buildconfig.ConfigPath(dataDir, fixtureCDNKey))] = []byte(cdnConfig)
	testutil.WriteTree(t, root, files)
	return root
}

func relative(root, path string) string {
	return strings.TrimPrefix(strings.TrimPrefix(path, root), "/")
}

// mergeGroups folds single-id groups with equal flags into one group
// with ascending ids.
func mergeGroups(groups []rootmanifest.Group) []rootmanifest.Group {
	type flags struct {
		locale  rootmanifest.Locale
		content rootmanifest.ContentFlags
	}
	merged := make(map[flags]*rootmanifest.Group)
	var order []flags
	for _, group := range groups {
		key := flags{group.Locale, group.Content}
		target, ok := merged[key]
		if !ok {
			target = &rootmanifest.Group{Locale: group.Locale, Content: group.Content}
			merged[key] = target
			order = append(order, key)
		}
		target.IDs = append(target.IDs, group.IDs...)
		target.Keys = append(target.Keys, group.Keys...)
	}

	result := make([]rootmanifest.Group, 0, len(order))
	for _, key := range order {
		group := merged[key]
		indices := make([]int, len(group.IDs))
		for i := range indices {
			indices[i] = i
		}
		sort.Slice(indices, func(a, b int) bool { return group.IDs[indices[a]] < group.IDs[indices[b]] })
		sorted := rootmanifest.Group{Locale: group.Locale, Content: group.Content}
		for _, i := range indices {
			sorted.IDs = append(sorted.IDs, group.IDs[i])
			sorted.Keys = append(sorted.Keys, group.Keys[i])
		}
		result = append(result, sorted)
	}
	return result
}

// requestLog counts CDN requests by URL path.
type requestLog struct {
	mu     sync.Mutex
	counts map[string]int
}

func (l *requestLog) add(path string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.counts[path]++
}

// count returns the number of requests whose path ends with suffix.
func (l *requestLog) count(suffix string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	total := 0
	for path, n := range l.counts {
		if strings.HasSuffix(path, suffix) {
			total += n
		}
	}
	return total
}

// serveCDN starts a CDN serving the install's CDN archive, its index,
// and loose files.
func (in *install) serveCDN(t *testing.T) (*httptest.Server, *requestLog) {
	t.Helper()
	index := archiveindex.BuildCDNFile(in.cdnRecords, in.cdnCount)
	archiveBytes := string(in.cdnArchive)
	loose := make(map[string][]byte, len(in.cdnLoose))
	for name, data := range in.cdnLoose {
		loose[name] = data
	}

	requests := &requestLog{counts: make(map[string]int)}
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.add(r.URL.Path)
		name := path.Base(r.URL.Path)
		switch {
		case name == fixtureCDNArchive+".index":
			w.Write(index)
		case name == fixtureCDNArchive:
			http.ServeContent(w, r, name, time.Time{}, strings.NewReader(archiveBytes))
		case loose[name] != nil:
			w.Write(loose[name])
		default:
			http.NotFound(w, r)
		}
	})
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server, requests
}
