package services

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
)

// modifyCall records one mutation request received by the fake store
type modifyCall struct {
	ids    []string
	add    []string
	remove []string
}

// fakeMailStore is an in-memory MailStore that tracks every remote call and
// simulates label application, concurrent label creation and partial applies.
type fakeMailStore struct {
	mu sync.Mutex

	labels  []*gmailapi.Label
	threads map[string][]*gmailapi.Message

	listLabelCalls int
	createCalls    []string
	batchCalls     []modifyCall
	threadCalls    []modifyCall
	fetchCalls     int

	// conflictNames: creating these returns 409 and, simulating the other
	// session, the label appears in the next listing
	conflictNames map[string]bool
	// stickyMessages ignore batch modifications (messages visible via
	// thread reads but not message reads)
	stickyMessages map[string]bool
	// afterBatch runs between the batch mutation and the verification fetch
	afterBatch func(f *fakeMailStore)

	listErr   error
	createErr error
	batchErr  error
	fetchErr  error
	threadErr error
}

func newFakeMailStore() *fakeMailStore {
	return &fakeMailStore{
		threads:        make(map[string][]*gmailapi.Message),
		conflictNames:  make(map[string]bool),
		stickyMessages: make(map[string]bool),
	}
}

func (f *fakeMailStore) addLabel(name string) *gmailapi.Label {
	label := &gmailapi.Label{Id: fmt.Sprintf("Label_%d", len(f.labels)+1), Name: name}
	f.labels = append(f.labels, label)
	return label
}

func (f *fakeMailStore) addThread(threadID string, msgs ...*gmailapi.Message) {
	f.threads[threadID] = msgs
}

func msg(id string, labelIDs ...string) *gmailapi.Message {
	return &gmailapi.Message{Id: id, LabelIds: labelIDs}
}

func (f *fakeMailStore) ListThreads(ctx context.Context, query string, maxResults int64, pageToken string) ([]*gmailapi.Thread, string, error) {
	return nil, "", nil
}

func (f *fakeMailStore) GetMessage(ctx context.Context, messageID string) (*gmailapi.Message, error) {
	return nil, fmt.Errorf("not implemented")
}

func (f *fakeMailStore) ListLabels(ctx context.Context) ([]*gmailapi.Label, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listLabelCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]*gmailapi.Label, len(f.labels))
	copy(out, f.labels)
	return out, nil
}

func (f *fakeMailStore) CreateLabel(ctx context.Context, name string, hidden bool) (*gmailapi.Label, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls = append(f.createCalls, name)
	if f.createErr != nil {
		return nil, f.createErr
	}
	for _, l := range f.labels {
		if l.Name == name {
			return nil, &googleapi.Error{Code: http.StatusConflict, Message: "Label name exists or conflicts"}
		}
	}
	if f.conflictNames[name] {
		delete(f.conflictNames, name)
		// Another session won the race: the label exists remotely now.
		f.addLabel(name)
		return nil, &googleapi.Error{Code: http.StatusConflict, Message: "Label name exists or conflicts"}
	}
	return f.addLabel(name), nil
}

func (f *fakeMailStore) FetchThreadMembers(ctx context.Context, threadID string) ([]*gmailapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	msgs := f.threads[threadID]
	out := make([]*gmailapi.Message, 0, len(msgs))
	for _, m := range msgs {
		labels := make([]string, len(m.LabelIds))
		copy(labels, m.LabelIds)
		out = append(out, &gmailapi.Message{Id: m.Id, ThreadId: m.ThreadId, LabelIds: labels})
	}
	return out, nil
}

func (f *fakeMailStore) BatchModifyMessages(ctx context.Context, messageIDs, addLabelIDs, removeLabelIDs []string) error {
	f.mu.Lock()
	f.batchCalls = append(f.batchCalls, modifyCall{ids: messageIDs, add: addLabelIDs, remove: removeLabelIDs})
	if f.batchErr != nil {
		f.mu.Unlock()
		return f.batchErr
	}
	idSet := make(map[string]struct{}, len(messageIDs))
	for _, id := range messageIDs {
		idSet[id] = struct{}{}
	}
	for _, msgs := range f.threads {
		for _, m := range msgs {
			if _, ok := idSet[m.Id]; !ok || f.stickyMessages[m.Id] {
				continue
			}
			m.LabelIds = applyDeltaToLabels(m.LabelIds, addLabelIDs, removeLabelIDs)
		}
	}
	hook := f.afterBatch
	f.mu.Unlock()
	if hook != nil {
		hook(f)
	}
	return nil
}

func (f *fakeMailStore) ModifyThread(ctx context.Context, threadID string, addLabelIDs, removeLabelIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.threadCalls = append(f.threadCalls, modifyCall{ids: []string{threadID}, add: addLabelIDs, remove: removeLabelIDs})
	if f.threadErr != nil {
		return f.threadErr
	}
	for _, m := range f.threads[threadID] {
		m.LabelIds = applyDeltaToLabels(m.LabelIds, addLabelIDs, removeLabelIDs)
	}
	return nil
}

func applyDeltaToLabels(labels, add, remove []string) []string {
	set := make(map[string]struct{}, len(labels))
	out := make([]string, 0, len(labels)+len(add))
	removeSet := make(map[string]struct{}, len(remove))
	for _, id := range remove {
		removeSet[id] = struct{}{}
	}
	for _, id := range labels {
		if _, drop := removeSet[id]; drop {
			continue
		}
		if _, dup := set[id]; dup {
			continue
		}
		set[id] = struct{}{}
		out = append(out, id)
	}
	for _, id := range add {
		if _, dup := set[id]; dup {
			continue
		}
		if _, drop := removeSet[id]; drop {
			continue
		}
		set[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// labelsOf returns the current label ids of a message in the fake store
func (f *fakeMailStore) labelsOf(threadID, messageID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.threads[threadID] {
		if m.Id == messageID {
			out := make([]string, len(m.LabelIds))
			copy(out, m.LabelIds)
			return out
		}
	}
	return nil
}

func errLabelConflict409() error {
	return &googleapi.Error{Code: http.StatusConflict, Message: "Label name exists or conflicts"}
}

var _ MailStore = (*fakeMailStore)(nil)
