package channel

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
)

// Registry is the adapter dispatch table keyed by the closed channel enum.
// It must be created via NewRegistry and passed explicitly to components
// that need it.
type Registry struct {
	mu       sync.RWMutex
	adapters map[ChannelType]Adapter
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters: map[ChannelType]Adapter{},
	}
}

// Register adds an adapter to the registry. Types outside All() are rejected.
func (r *Registry) Register(adapter Adapter) error {
	if adapter == nil {
		return fmt.Errorf("adapter is nil")
	}
	ct := normalizeChannelType(adapter.Type().String())
	if ct == "" {
		return fmt.Errorf("channel type is required")
	}
	if !ct.Valid() {
		return fmt.Errorf("%w: %s", ErrUnsupportedChannel, ct)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[ct]; exists {
		return fmt.Errorf("channel type already registered: %s", ct)
	}
	r.adapters[ct] = adapter
	return nil
}

// MustRegister calls Register and panics on error.
func (r *Registry) MustRegister(adapter Adapter) {
	if err := r.Register(adapter); err != nil {
		panic(err)
	}
}

// Get returns the adapter for the given channel type.
func (r *Registry) Get(channelType ChannelType) (Adapter, bool) {
	ct := normalizeChannelType(channelType.String())
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[ct]
	return adapter, ok
}

// Types returns all registered channel types in All() order.
func (r *Registry) Types() []ChannelType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	items := make([]ChannelType, 0, len(r.adapters))
	for _, ct := range All() {
		if _, ok := r.adapters[ct]; ok {
			items = append(items, ct)
		}
	}
	return items
}

// Missing lists supported channels that have no adapter registered.
func (r *Registry) Missing() []ChannelType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var missing []ChannelType
	for _, ct := range All() {
		if _, ok := r.adapters[ct]; !ok {
			missing = append(missing, ct)
		}
	}
	return missing
}

// Complete returns an error naming every channel without an adapter.
func (r *Registry) Complete() error {
	missing := r.Missing()
	if len(missing) == 0 {
		return nil
	}
	names := make([]string, 0, len(missing))
	for _, ct := range missing {
		names = append(names, ct.String())
	}
	return fmt.Errorf("no adapter registered for: %s", strings.Join(names, ", "))
}

// GetDescriptor returns the descriptor for the given channel type.
func (r *Registry) GetDescriptor(channelType ChannelType) (Descriptor, bool) {
	adapter, ok := r.Get(channelType)
	if !ok {
		return Descriptor{}, false
	}
	return adapter.Descriptor(), true
}

// ListDescriptors returns descriptors for all registered channel types,
// sorted by type.
func (r *Registry) ListDescriptors() []Descriptor {
	types := r.Types()
	items := make([]Descriptor, 0, len(types))
	for _, ct := range types {
		if desc, ok := r.GetDescriptor(ct); ok {
			items = append(items, desc)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Type < items[j].Type })
	return items
}

// ParseChannelType validates raw against the closed set and the registered adapters.
func (r *Registry) ParseChannelType(raw string) (ChannelType, error) {
	ct, err := ParseChannelType(raw)
	if err != nil {
		return "", err
	}
	if _, ok := r.Get(ct); !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedChannel, ct)
	}
	return ct, nil
}

// Parse dispatches a raw payload to the channel's adapter and stamps the
// channel on every extracted message.
func (r *Registry) Parse(channelType ChannelType, payload []byte) ([]InboundMessage, error) {
	adapter, ok := r.Get(channelType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedChannel, channelType)
	}
	msgs, err := adapter.Parse(payload)
	if err != nil {
		return nil, err
	}
	for i := range msgs {
		msgs[i].Channel = channelType
	}
	return msgs, nil
}

// VerifySignature calls the channel's SignatureVerifier when it has one.
func (r *Registry) VerifySignature(channelType ChannelType, header http.Header, payload []byte, credentials map[string]any) error {
	adapter, ok := r.Get(channelType)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedChannel, channelType)
	}
	verifier, ok := adapter.(SignatureVerifier)
	if !ok {
		return nil
	}
	return verifier.VerifySignature(header, payload, credentials)
}

// Confirmation calls the channel's ConfirmationResponder when it has one.
func (r *Registry) Confirmation(channelType ChannelType, payload []byte, credentials map[string]any) (string, bool, error) {
	adapter, ok := r.Get(channelType)
	if !ok {
		return "", false, fmt.Errorf("%w: %s", ErrUnsupportedChannel, channelType)
	}
	responder, ok := adapter.(ConfirmationResponder)
	if !ok {
		return "", false, nil
	}
	return responder.Confirmation(payload, credentials)
}

// GetTextSender returns the TextSender for the given channel type, or nil if unsupported.
func (r *Registry) GetTextSender(channelType ChannelType) (TextSender, bool) {
	adapter, ok := r.Get(channelType)
	if !ok {
		return nil, false
	}
	sender, ok := adapter.(TextSender)
	return sender, ok
}

func normalizeChannelType(raw string) ChannelType {
	normalized := strings.TrimSpace(strings.ToLower(raw))
	if normalized == "" {
		return ""
	}
	return ChannelType(normalized)
}
