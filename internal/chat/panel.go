// Package chat drives a discussion from the UI: it follows the active note,
// sends prompts with their composed context, and routes replies back to the
// discussion that asked for them.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/DeuxFois/papervault/internal/discussions"
	"github.com/DeuxFois/papervault/internal/llm"
	"github.com/DeuxFois/papervault/internal/logging"
	"github.com/DeuxFois/papervault/internal/papers"
	"github.com/DeuxFois/papervault/internal/pdfcontext"
	"github.com/DeuxFois/papervault/internal/vault"
)

var (
	ErrNoActiveNote = errors.New("no active note")
	ErrEmptyPrompt  = errors.New("empty prompt")
)

type Options struct {
	SystemPrompt string
	HistoryTurns int
	MaxTokens    int
}

// Panel binds the discussion store to the active note and the LLM client.
type Panel struct {
	store  *discussions.Store
	vault  *vault.Vault
	papers *papers.Synchronizer
	client llm.Client
	logger *log.Logger
	opts   Options
	pdf    *pdfcontext.Builder

	mu       sync.Mutex
	notePath string
	lastSeen string
	updating bool
	inflight *Request
}

// NewPanel returns a panel. papers may be nil, in which case PDFs are never
// added to the context.
func NewPanel(store *discussions.Store, v *vault.Vault, index *papers.Synchronizer, client llm.Client, opts Options, logger *log.Logger) *Panel {
	if opts.HistoryTurns <= 0 {
		opts.HistoryTurns = discussions.DefaultHistoryTurns
	}
	return &Panel{
		store:  store,
		vault:  v,
		papers: index,
		client: client,
		logger: logging.OrDiscard(logger).With("component", "chat"),
		opts:   opts,
		pdf:    pdfcontext.NewBuilder(discussions.PDFBudget),
	}
}

func (p *Panel) Store() *discussions.Store { return p.store }

// NotePath returns the active note.
func (p *Panel) NotePath() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.notePath
}

// Busy reports whether a reply is outstanding.
func (p *Panel) Busy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inflight != nil
}

// SwitchNote follows the active note. Repeated calls for the note already
// seen, and calls made while a switch is in progress, are ignored. The
// outgoing discussion is saved; the newest discussion of the new note is
// opened, or a fresh one when it has none.
func (p *Panel) SwitchNote(ctx context.Context, notePath string) error {
	notePath = vault.Clean(notePath)
	p.mu.Lock()
	if p.updating || notePath == p.lastSeen {
		p.mu.Unlock()
		return nil
	}
	p.updating = true
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.updating = false
		p.mu.Unlock()
	}()

	if p.store.Dirty() {
		if err := p.store.SaveCurrent(ctx); err != nil {
			p.logger.Warn("saving discussion before switch failed", "err", err)
		}
	}

	var err error
	if latest, ok := p.store.Latest(notePath); ok {
		_, err = p.store.LoadDiscussion(ctx, latest.ID, notePath)
	} else {
		_, err = p.store.StartNew(ctx, notePath)
	}
	if err != nil {
		return fmt.Errorf("open discussion for %s: %w", notePath, err)
	}

	p.mu.Lock()
	p.notePath = notePath
	p.lastSeen = notePath
	p.mu.Unlock()
	p.logger.Debug("active note changed", "note", notePath)
	return nil
}

// NewDiscussion starts a fresh discussion on the active note.
func (p *Panel) NewDiscussion(ctx context.Context) (discussions.Discussion, error) {
	notePath := p.NotePath()
	if notePath == "" {
		return discussions.Discussion{}, ErrNoActiveNote
	}
	return p.store.StartNew(ctx, notePath)
}

// Request is one outstanding LLM call together with the discussion it
// belongs to, captured at send time.
type Request struct {
	NotePath      string
	DiscussionID  string
	PlaceholderID string
	Prompt        string
	Messages      []llm.Message

	client    llm.Client
	maxTokens int
	ctx       context.Context
	cancel    context.CancelFunc
}

// Reply is the outcome of Request.Run.
type Reply struct {
	Request *Request
	Text    string
	Err     error
}

// Run performs the call. It is safe to run on any goroutine.
func (r *Request) Run() Reply {
	text, err := r.client.Chat(r.ctx, r.Messages, r.maxTokens)
	return Reply{Request: r, Text: strings.TrimSpace(text), Err: err}
}

// Cancel aborts the call.
func (r *Request) Cancel() { r.cancel() }

// Send records the prompt and a typing placeholder in the live discussion and
// prepares the LLM call. Any earlier outstanding request is cancelled.
func (p *Panel) Send(ctx context.Context, prompt string) (*Request, error) {
	notePath := p.NotePath()
	if notePath == "" {
		return nil, ErrNoActiveNote
	}
	if strings.TrimSpace(prompt) == "" {
		return nil, ErrEmptyPrompt
	}
	p.Cancel()

	if _, ok := p.store.AddMessage(discussions.RoleUser, prompt); !ok {
		return nil, discussions.ErrNoActiveDiscussion
	}
	placeholder, err := p.store.AddPlaceholder()
	if err != nil {
		return nil, err
	}
	current, ok := p.store.Current()
	if !ok {
		return nil, discussions.ErrNoActiveDiscussion
	}

	contextText := discussions.ComposeContext(p.contextFor(ctx, current, prompt))
	reqCtx, cancel := context.WithCancel(ctx)
	req := &Request{
		NotePath:      notePath,
		DiscussionID:  current.ID,
		PlaceholderID: placeholder,
		Prompt:        prompt,
		Messages:      discussions.BuildMessages(p.opts.SystemPrompt, contextText, current.History, p.opts.HistoryTurns, prompt),
		client:        p.client,
		maxTokens:     p.opts.MaxTokens,
		ctx:           reqCtx,
		cancel:        cancel,
	}
	p.mu.Lock()
	p.inflight = req
	p.mu.Unlock()
	p.logger.Debug("prompt sent", "note", notePath, "discussion", current.ID, "messages", len(req.Messages))
	return req, nil
}

// Cancel aborts the outstanding request, if any.
func (p *Panel) Cancel() {
	p.mu.Lock()
	req := p.inflight
	p.inflight = nil
	p.mu.Unlock()
	if req != nil {
		req.Cancel()
	}
}

// contextFor gathers the note and PDF text of d. Long PDFs are condensed
// around prompt.
func (p *Panel) contextFor(ctx context.Context, d discussions.Discussion, prompt string) discussions.ContextInput {
	var noteContent, pdfName, pdfText string
	if d.IncludeNoteInContext {
		if content, err := p.vault.Read(d.NotePath); err == nil {
			noteContent = content
		} else {
			p.logger.Warn("reading note for context failed", "note", d.NotePath, "err", err)
		}
	}
	if d.IncludePDFInContext && p.papers != nil {
		if record, ok := p.papers.Lookup(d.NotePath); ok && record.PDF() != "" {
			if text, err := p.papers.PDFText(ctx, record); err == nil {
				pdfName = record.Title()
				pdfText = p.pdf.Build(text, prompt)
			} else {
				p.logger.Warn("extracting pdf for context failed", "note", d.NotePath, "err", err)
			}
		}
	}
	return discussions.InputFor(d, noteContent, pdfName, pdfText)
}

// Deliver routes a reply to the discussion that asked for it: in place of
// the placeholder while that discussion is live, into its stored record
// otherwise. Cancelled requests drop their placeholder silently. Provider
// failures replace the placeholder with an error message.
func (p *Panel) Deliver(ctx context.Context, reply Reply) error {
	req := reply.Request
	req.cancel()
	p.mu.Lock()
	if p.inflight == req {
		p.inflight = nil
	}
	p.mu.Unlock()

	switch {
	case reply.Err != nil && errors.Is(reply.Err, context.Canceled):
		p.logger.Info("request cancelled", "note", req.NotePath, "discussion", req.DiscussionID)
		p.store.RemoveMessage(req.PlaceholderID)
		return nil
	case reply.Err != nil:
		p.logger.Error("llm request failed", "note", req.NotePath, "err", reply.Err)
		_, err := p.store.FailReply(ctx, req.DiscussionID, req.PlaceholderID, "Error: "+reply.Err.Error())
		return err
	}

	live, err := p.store.DeliverReply(ctx, req.NotePath, req.DiscussionID, req.PlaceholderID, reply.Text)
	if !live {
		p.logger.Debug("reply stored in origin discussion", "note", req.NotePath, "discussion", req.DiscussionID)
	}
	return err
}

// Ask sends prompt and waits for the reply.
func (p *Panel) Ask(ctx context.Context, prompt string) (string, error) {
	req, err := p.Send(ctx, prompt)
	if err != nil {
		return "", err
	}
	reply := req.Run()
	if err := p.Deliver(ctx, reply); err != nil {
		return reply.Text, err
	}
	return reply.Text, reply.Err
}
