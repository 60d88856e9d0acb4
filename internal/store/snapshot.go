package store

import (
	"encoding/csv"
	"os"
	"path/filepath"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"

	"github.com/vitalsight/harvest-cli/internal/model"
)

// WriteSnapshot writes the full product CSV snapshot, replacing any
// previous file. Records sharing a URL are deduplicated keep-last so a
// re-scan in the same batch wins over the earlier row.
func WriteSnapshot(path string, records []model.ProductRecord) error {
	deduped := DedupeByURL(records)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "store: snapshot dir for %s", path)
	}

	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "store: create snapshot %s", path)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	enc := csvutil.NewEncoder(w)
	for _, r := range deduped {
		if err := enc.Encode(r); err != nil {
			return eris.Wrap(err, "store: encode snapshot row")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return eris.Wrap(err, "store: flush snapshot")
	}
	return nil
}

// ReadSnapshot loads a product CSV snapshot.
func ReadSnapshot(path string) ([]model.ProductRecord, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "store: read snapshot %s", path)
	}

	var records []model.ProductRecord
	if err := csvutil.Unmarshal(raw, &records); err != nil {
		return nil, eris.Wrapf(err, "store: parse snapshot %s", path)
	}
	return records, nil
}

// DedupeByURL removes duplicate URLs keeping the last occurrence, which
// preserves first-seen ordering but the freshest data.
func DedupeByURL(records []model.ProductRecord) []model.ProductRecord {
	last := make(map[string]model.ProductRecord, len(records))
	order := make([]string, 0, len(records))
	for _, r := range records {
		if _, seen := last[r.URL]; !seen {
			order = append(order, r.URL)
		}
		last[r.URL] = r
	}

	out := make([]model.ProductRecord, 0, len(order))
	for _, url := range order {
		out = append(out, last[url])
	}
	return out
}

// ReadTargets loads the brand→domain manifest CSV.
func ReadTargets(path string) ([]model.Target, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "store: read targets %s", path)
	}

	var targets []model.Target
	if err := csvutil.Unmarshal(raw, &targets); err != nil {
		return nil, eris.Wrapf(err, "store: parse targets %s", path)
	}
	return targets, nil
}

// WriteURLManifest writes the discovery-phase {brand, url} manifest.
func WriteURLManifest(path string, urls []model.CandidateURL) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "store: manifest dir for %s", path)
	}

	data, err := csvutil.Marshal(urls)
	if err != nil {
		return eris.Wrap(err, "store: encode url manifest")
	}
	return eris.Wrapf(os.WriteFile(path, data, 0o644), "store: write manifest %s", path)
}

// ReadURLManifest loads a discovery-phase URL manifest.
func ReadURLManifest(path string) ([]model.CandidateURL, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "store: read manifest %s", path)
	}

	var urls []model.CandidateURL
	if err := csvutil.Unmarshal(raw, &urls); err != nil {
		return nil, eris.Wrapf(err, "store: parse manifest %s", path)
	}
	return urls, nil
}
