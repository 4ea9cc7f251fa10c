package services

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"

	gmailapi "google.golang.org/api/gmail/v1"
)

// LabelDirectoryImpl implements LabelDirectory. It keeps two in-sync indices
// over the account's labels and lazily creates missing hierarchical names,
// prefix by prefix. A label enters the indices only after the remote store
// confirmed it (fetched or created).
type LabelDirectoryImpl struct {
	store  MailStore
	logger *log.Logger // Optional - for debug logging

	// mu serializes the whole read-check-create-insert sequence so two
	// in-flight GetOrCreate calls sharing a prefix cannot both issue a
	// create for it.
	mu          sync.Mutex
	byName      map[string]*gmailapi.Label
	byID        map[string]*gmailapi.Label
	initialized bool
}

// NewLabelDirectory creates a new label directory over the given store
func NewLabelDirectory(store MailStore) *LabelDirectoryImpl {
	return &LabelDirectoryImpl{
		store:  store,
		byName: make(map[string]*gmailapi.Label),
		byID:   make(map[string]*gmailapi.Label),
	}
}

// SetLogger sets the logger for debug output
func (d *LabelDirectoryImpl) SetLogger(logger *log.Logger) {
	d.logger = logger
}

// Init bulk-fetches all existing labels and populates both indices.
// No-op when already initialized.
func (d *LabelDirectoryImpl) Init(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ensureInitLocked(ctx)
}

func (d *LabelDirectoryImpl) ensureInitLocked(ctx context.Context) error {
	if d.initialized {
		return nil
	}
	labels, err := d.store.ListLabels(ctx)
	if err != nil {
		return fmt.Errorf("failed to list labels: %w", err)
	}
	for _, label := range labels {
		d.storeLabelLocked(label)
	}
	d.initialized = true
	if d.logger != nil {
		d.logger.Printf("label directory initialized with %d labels", len(labels))
	}
	return nil
}

func (d *LabelDirectoryImpl) storeLabelLocked(label *gmailapi.Label) {
	if label == nil || label.Id == "" || label.Name == "" {
		return
	}
	d.byName[label.Name] = label
	d.byID[label.Id] = label
}

// GetOrCreate resolves a hierarchical label name. The common path is an index
// hit with zero remote calls. Otherwise the `/`-delimited prefixes are walked
// left to right and every missing one is created remotely, hidden from normal
// listing, parent strictly before child. After a successful return every
// ancestor prefix of name exists both remotely and locally.
func (d *LabelDirectoryImpl) GetOrCreate(ctx context.Context, name string) (*gmailapi.Label, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: label name cannot be empty", ErrInvalidInput)
	}
	parts := strings.Split(name, "/")
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			return nil, fmt.Errorf("%w: label name %q has an empty segment", ErrInvalidInput, name)
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.ensureInitLocked(ctx); err != nil {
		return nil, err
	}

	if label, ok := d.byName[name]; ok {
		return label, nil
	}

	prefix := ""
	for _, part := range parts {
		if prefix == "" {
			prefix = part
		} else {
			prefix = prefix + "/" + part
		}
		if _, ok := d.byName[prefix]; ok {
			continue
		}
		if err := d.createPrefixLocked(ctx, prefix); err != nil {
			return nil, err
		}
	}

	label, ok := d.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: label %q missing after creation", ErrLabelNotFound, name)
	}
	return label, nil
}

// createPrefixLocked creates one missing prefix remotely. A conflict means
// another session created the name concurrently; recover by re-listing and
// re-indexing instead of failing the whole resolution.
func (d *LabelDirectoryImpl) createPrefixLocked(ctx context.Context, prefix string) error {
	label, err := d.store.CreateLabel(ctx, prefix, true)
	if err == nil {
		d.storeLabelLocked(label)
		return nil
	}
	if !IsConflictError(err) {
		return fmt.Errorf("failed to create label %q: %w", prefix, err)
	}

	if d.logger != nil {
		d.logger.Printf("label %q already exists remotely, re-resolving", prefix)
	}
	labels, lerr := d.store.ListLabels(ctx)
	if lerr != nil {
		return fmt.Errorf("failed to re-resolve label %q after conflict: %w", prefix, lerr)
	}
	for _, l := range labels {
		d.storeLabelLocked(l)
	}
	if _, ok := d.byName[prefix]; !ok {
		// The create was rejected as a duplicate but the name is still not
		// listed; surface the conflict rather than losing the operation.
		return fmt.Errorf("%w: label %q rejected as duplicate but not listed: %v", ErrLabelConflict, prefix, err)
	}
	return nil
}

// ByName returns an already-resolved label by full name
func (d *LabelDirectoryImpl) ByName(name string) (*gmailapi.Label, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	label, ok := d.byName[name]
	return label, ok
}

// ByID returns an already-resolved label by remote id
func (d *LabelDirectoryImpl) ByID(id string) (*gmailapi.Label, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	label, ok := d.byID[id]
	return label, ok
}

// Labels returns all resolved labels sorted by name
func (d *LabelDirectoryImpl) Labels() []*gmailapi.Label {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*gmailapi.Label, 0, len(d.byName))
	for _, label := range d.byName {
		out = append(out, label)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
