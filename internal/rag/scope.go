package rag

import (
	"fmt"
	"regexp"
	"strings"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// TenantScope is the isolation key for every index operation.
// The zero value is invalid; build one with NewTenantScope.
type TenantScope struct {
	ownerEmail  string
	ownerName   string
	chatbotName string
}

func NewTenantScope(ownerEmail, ownerName, chatbotName string) (TenantScope, error) {
	scope := TenantScope{
		ownerEmail:  strings.TrimSpace(ownerEmail),
		ownerName:   strings.TrimSpace(ownerName),
		chatbotName: strings.TrimSpace(chatbotName),
	}
	if err := scope.Validate(); err != nil {
		return TenantScope{}, err
	}
	return scope, nil
}

func (s TenantScope) OwnerEmail() string  { return s.ownerEmail }
func (s TenantScope) OwnerName() string   { return s.ownerName }
func (s TenantScope) ChatbotName() string { return s.chatbotName }

func (s TenantScope) Validate() error {
	if s.ownerEmail == "" {
		return fmt.Errorf("%w: missing owner", ErrInvalidScope)
	}
	if s.chatbotName == "" {
		return fmt.Errorf("%w: missing chatbot name", ErrInvalidScope)
	}
	// "/" separates owner and chatbot in share ids and routes
	if strings.Contains(s.chatbotName, "/") {
		return fmt.Errorf("%w: chatbot name %q contains '/'", ErrInvalidScope, s.chatbotName)
	}
	return nil
}

func (s TenantScope) Filter() Filter {
	return Filter{UserEmail: s.ownerEmail, ChatbotName: s.chatbotName}
}

// ShareID is the public routable identifier of the chatbot.
func (s TenantScope) ShareID() string {
	owner := s.ownerName
	if owner == "" {
		owner, _, _ = strings.Cut(s.ownerEmail, "@")
	}
	return ShareID(owner, s.chatbotName)
}

// ShareID builds "<owner>/<chatbot>": owner lowercased with whitespace removed,
// chatbot trimmed, lowercased and with whitespace runs turned into "-".
func ShareID(ownerName, chatbotName string) string {
	owner := whitespaceRun.ReplaceAllString(strings.ToLower(ownerName), "")
	bot := whitespaceRun.ReplaceAllString(strings.ToLower(strings.TrimSpace(chatbotName)), "-")
	return owner + "/" + bot
}

func scopeFromMetadata(md Metadata) (TenantScope, error) {
	return NewTenantScope(md.UserEmail, md.UserName, md.ChatbotName)
}
