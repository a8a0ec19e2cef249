package integration

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"net/mail"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/valter-silva-au/sectriage/internal/core"
)

const utf8Charset = "UTF-8"

// ErrInvalidAddress is returned when a sender or recipient is not a single
// well-formed mailbox, including any value that contains a line break.
var ErrInvalidAddress = errors.New("invalid email address")

// parseAddress returns the canonical header form of a single mailbox.
func parseAddress(field, v string) (string, error) {
	if strings.ContainsAny(v, "\r\n") {
		return "", fmt.Errorf("%s %q: %w: contains a line break", field, v, ErrInvalidAddress)
	}
	addr, err := mail.ParseAddress(v)
	if err != nil {
		return "", fmt.Errorf("%s %q: %w: %v", field, v, ErrInvalidAddress, err)
	}
	if addr.Name == "" {
		return addr.Address, nil
	}
	return addr.String(), nil
}

type envelope struct {
	from string
	to   string
	cc   []string
}

// checkAddresses validates the sender and every recipient of msg.
func checkAddresses(from string, msg core.Reply) (envelope, error) {
	var env envelope
	var err error
	if env.from, err = parseAddress("from", from); err != nil {
		return envelope{}, err
	}
	if env.to, err = parseAddress("to", msg.To); err != nil {
		return envelope{}, err
	}
	for _, c := range msg.CC {
		a, err := parseAddress("cc", c)
		if err != nil {
			return envelope{}, err
		}
		env.cc = append(env.cc, a)
	}
	return env, nil
}

// BuildSESParams builds the structured send-email request for msg. CC is set
// only when msg carries CC addresses.
func BuildSESParams(from string, msg core.Reply) (*sesv2.SendEmailInput, error) {
	env, err := checkAddresses(from, msg)
	if err != nil {
		return nil, err
	}
	dest := &types.Destination{ToAddresses: []string{env.to}}
	if len(env.cc) > 0 {
		dest.CcAddresses = env.cc
	}
	return &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(env.from),
		Destination:      dest,
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(oneLine(msg.Subject)), Charset: aws.String(utf8Charset)},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(msg.Text), Charset: aws.String(utf8Charset)},
				},
			},
		},
	}, nil
}

// BuildRawMIME renders msg as a plain-text RFC 2822 message and returns it
// base64url encoded without padding, the form the Gmail send API expects in
// its raw field.
func BuildRawMIME(from string, msg core.Reply) (string, error) {
	env, err := checkAddresses(from, msg)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(renderMIME(env, msg)), nil
}

// oneLine folds any line breaks in a header value into spaces.
func oneLine(v string) string {
	return strings.Join(strings.Fields(v), " ")
}

func renderMIME(env envelope, msg core.Reply) []byte {
	var b bytes.Buffer
	header := func(k, v string) {
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(v)
		b.WriteString("\r\n")
	}
	header("From", env.from)
	header("To", env.to)
	if len(env.cc) > 0 {
		header("Cc", strings.Join(env.cc, ", "))
	}
	header("Subject", mime.QEncoding.Encode(utf8Charset, oneLine(msg.Subject)))
	header("MIME-Version", "1.0")
	header("Content-Type", `text/plain; charset="UTF-8"`)
	header("Content-Transfer-Encoding", "8bit")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(strings.ReplaceAll(msg.Text, "\r\n", "\n"), "\n", "\r\n"))
	return b.Bytes()
}
