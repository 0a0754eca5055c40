package message_test

import (
	"bytes"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/inbucket/inbound/pkg/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleImageFilename = "sample_image.png"

func readTestData(t *testing.T, name string) []byte {
	t.Helper()
	b, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return b
}

func sampleImage(t *testing.T) []byte {
	t.Helper()
	return readTestData(t, sampleImageFilename)
}

// uploadedFile implements message.File.
type uploadedFile struct {
	*bytes.Reader
	name, contentType string
}

func (f *uploadedFile) Name() string        { return f.name }
func (f *uploadedFile) ContentType() string { return f.contentType }

func TestConstructParams(t *testing.T) {
	msg, err := message.Construct(message.ConstructArgs{
		From:    "from@example.com",
		To:      []string{"to@example.com"},
		Cc:      []string{"cc@example.com"},
		Subject: "test subject",
	})
	require.NoError(t, err)
	assert.Equal(t, "from@example.com", msg.Get("From"))
	assert.Equal(t, "to@example.com", msg.Get("To"))
	assert.Equal(t, "cc@example.com", msg.Get("Cc"))
	assert.Equal(t, "test subject", msg.Get("Subject"))
	assert.Equal(t, "1.0", msg.Get("MIME-Version"))
	assert.Empty(t, msg.Defects())
	assert.Empty(t, msg.EnvelopeRecipient)
}

func TestConstructJoinsAddressLists(t *testing.T) {
	msg, err := message.Construct(message.ConstructArgs{
		To:  []string{"First To <to1@example.com>", "to2@example.com, to3@example.com"},
		Bcc: []string{"hidden@example.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, "First To <to1@example.com>, to2@example.com, to3@example.com", msg.Get("To"))
	assert.Equal(t, "hidden@example.com", msg.Get("Bcc"))
	assert.Len(t, msg.To(), 3)
}

func TestConstructHeadersCaseInsensitive(t *testing.T) {
	msg, err := message.Construct(message.ConstructArgs{
		Headers: []message.HeaderField{
			{Name: "Reply-To", Value: "reply@example.com"},
			{Name: "X-Test", Value: "anything"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "reply@example.com", msg.Get("reply-to"))
	assert.Equal(t, "anything", msg.Get("X-TEST"))
}

func TestConstructHeadersFromPairs(t *testing.T) {
	msg, err := message.Construct(message.ConstructArgs{
		Headers: []message.HeaderField{
			{Name: "Reply-To", Value: "reply@example.com"},
			{Name: "Received", Value: "by 10.1.1.4 with SMTP id q4csp; Sun, 22 Oct 2017 00:23:22 -0700 (PDT)"},
			{Name: "Received", Value: "from mail.example.com (mail.example.com. [10.10.1.9])" +
				" by mx.example.com with SMTPS id 93s8iok for <to@example.com>;" +
				" Sun, 22 Oct 2017 00:23:21 -0700 (PDT)"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "reply@example.com", msg.Get("Reply-To"))
	assert.Equal(t, []string{
		"by 10.1.1.4 with SMTP id q4csp; Sun, 22 Oct 2017 00:23:22 -0700 (PDT)",
		"from mail.example.com (mail.example.com. [10.10.1.9])" +
			" by mx.example.com with SMTPS id 93s8iok for <to@example.com>;" +
			" Sun, 22 Oct 2017 00:23:21 -0700 (PDT)",
	}, msg.Values("Received"))
}

func TestConstructHeadersFromRaw(t *testing.T) {
	raw := "Reply-To: reply@example.com\n" +
		"Subject: raw subject\n" +
		"Content-Type: x-custom/custom\n" +
		"Received: by 10.1.1.4 with SMTP id q4csp; Sun, 22 Oct 2017 00:23:22 -0700 (PDT)\n" +
		"Received: from mail.example.com (mail.example.com. [10.10.1.9])\n" +
		" by mx.example.com with SMTPS id 93s8iok for <to@example.com>;\n" +
		" Sun, 22 Oct 2017 00:23:21 -0700 (PDT)\n"
	msg, err := message.Construct(message.ConstructArgs{
		RawHeaders: raw,
		Subject:    "Explicit subject overrides raw",
	})
	require.NoError(t, err)
	assert.Equal(t, "reply@example.com", msg.Get("Reply-To"))
	assert.Equal(t, []string{
		"by 10.1.1.4 with SMTP id q4csp; Sun, 22 Oct 2017 00:23:22 -0700 (PDT)",
		"from mail.example.com (mail.example.com. [10.10.1.9])" +
			" by mx.example.com with SMTPS id 93s8iok for <to@example.com>;" +
			" Sun, 22 Oct 2017 00:23:21 -0700 (PDT)",
	}, msg.Values("Received"))
	assert.Equal(t, []string{"Explicit subject overrides raw"}, msg.Values("Subject"))
	// Content-Type in raw headers is ignored.
	assert.Equal(t, []string{"multipart/mixed"}, msg.Values("Content-Type"))
}

func TestConstructRejectsStructuralHeaders(t *testing.T) {
	for _, name := range []string{"Content-Type", "content-transfer-encoding"} {
		t.Run(name, func(t *testing.T) {
			_, err := message.Construct(message.ConstructArgs{
				Headers: []message.HeaderField{{Name: name, Value: "text/plain"}},
			})
			var cerr *message.ConfigurationError
			assert.True(t, errors.As(err, &cerr), "got %v", err)
		})
	}
}

func TestConstructInvalidAddress(t *testing.T) {
	testCases := []struct {
		name  string
		args  message.ConstructArgs
		field string
	}{
		{"from", message.ConstructArgs{From: "not an address"}, "From"},
		{"to", message.ConstructArgs{To: []string{"ok@example.com", "bad@@example.com"}}, "To"},
		{"cc domain", message.ConstructArgs{Cc: []string{"user@-bad-.com"}}, "Cc"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := message.Construct(tc.args)
			var aerr *message.AddressParseError
			require.True(t, errors.As(err, &aerr), "got %v", err)
			assert.Equal(t, tc.field, aerr.Field)
		})
	}
}

func TestConstructBodies(t *testing.T) {
	msg, err := message.Construct(message.ConstructArgs{Text: "Plaintext body", HTML: "HTML body"})
	require.NoError(t, err)
	assert.Equal(t, "multipart/alternative", msg.Get("Content-Type"))
	require.Len(t, msg.Children(), 2)

	plaintext := msg.Child(0)
	assert.Equal(t, `text/plain; charset="utf-8"`, plaintext.Get("Content-Type"))
	assert.Equal(t, "Plaintext body", plaintext.ContentText())

	html := msg.Child(1)
	assert.Equal(t, `text/html; charset="utf-8"`, html.Get("Content-Type"))
	assert.Equal(t, "HTML body", html.ContentText())
}

func TestConstructSingleBody(t *testing.T) {
	msg, err := message.Construct(message.ConstructArgs{Subject: "Hi", HTML: "<p>HTML only</p>"})
	require.NoError(t, err)
	assert.False(t, msg.IsMultipart())
	assert.Equal(t, `text/html; charset="utf-8"`, msg.Get("Content-Type"))
	assert.Equal(t, "7bit", msg.Get("Content-Transfer-Encoding"))
	assert.Equal(t, "<p>HTML only</p>", msg.ContentText())
	// Root headers precede the content headers.
	fields := msg.Header().Fields()
	require.Len(t, fields, 4)
	assert.Equal(t, "Subject", fields[0].Name)
	assert.Equal(t, "MIME-Version", fields[1].Name)
}

func TestConstructNonASCIIBody(t *testing.T) {
	msg, err := message.Construct(message.ConstructArgs{Text: "Grüße aus Köln"})
	require.NoError(t, err)
	assert.Equal(t, "base64", msg.Get("Content-Transfer-Encoding"))
	assert.Equal(t, "Grüße aus Köln", msg.ContentText())

	msg, err = message.Construct(message.ConstructArgs{Text: "Grüße", Charset: "iso-8859-1"})
	require.NoError(t, err)
	assert.Equal(t, `text/plain; charset="iso-8859-1"`, msg.Get("Content-Type"))
	assert.Equal(t, []byte("Gr\xfc\xdfe"), msg.ContentBytes())
	assert.Equal(t, "Grüße", msg.ContentText())

	_, err = message.Construct(message.ConstructArgs{Text: "Grüße", Charset: "us-ascii"})
	var cerr *message.ConfigurationError
	assert.True(t, errors.As(err, &cerr), "got %v", err)
}

func TestConstructAttachments(t *testing.T) {
	img := sampleImage(t)
	att1, err := message.NewAttachment("text/csv", []byte("One,Two\n1,2"), message.AttachmentOptions{
		Charset:  "iso-8859-1",
		Filename: "test.csv",
	})
	require.NoError(t, err)
	att2, err := message.NewAttachment("image/png", img, message.AttachmentOptions{
		Filename:  sampleImageFilename,
		ContentID: "abc123",
	})
	require.NoError(t, err)

	msg, err := message.Construct(message.ConstructArgs{Attachments: []*message.Message{att1, att2}})
	require.NoError(t, err)
	assert.Equal(t, "multipart/mixed", msg.Get("Content-Type"))
	// Bodies (related), att1.
	require.Len(t, msg.Children(), 2)

	att1Part := msg.Child(1)
	assert.NotSame(t, att1, att1Part, "attachments are copied into the tree")
	assert.Same(t, msg, att1Part.Parent())
	assert.Equal(t, `text/csv; name="test.csv"; charset="iso-8859-1"`, att1Part.Get("Content-Type"))
	assert.Equal(t, `attachment; filename="test.csv"`, att1Part.Get("Content-Disposition"))
	assert.False(t, att1Part.Has("Content-ID"))
	assert.Equal(t, "One,Two\n1,2", att1Part.ContentText())

	related := msg.Child(0)
	assert.Equal(t, "multipart/related", related.Get("Content-Type"))
	// Alternatives (with no bodies), att2.
	require.Len(t, related.Children(), 2)
	assert.Equal(t, "multipart/alternative", related.Child(0).Get("Content-Type"))
	assert.Empty(t, related.Child(0).Children())

	att2Part := related.Child(1)
	assert.Equal(t, `image/png; name="sample_image.png"`, att2Part.Get("Content-Type"))
	assert.Equal(t, `inline; filename="sample_image.png"`, att2Part.Get("Content-Disposition"))
	assert.Equal(t, "<abc123>", att2Part.Get("Content-ID"))
	assert.Equal(t, img, att2Part.ContentBytes())
}

func TestConstructReusesAttachment(t *testing.T) {
	att, err := message.NewAttachment("image/png", sampleImage(t), message.AttachmentOptions{
		Filename:  sampleImageFilename,
		ContentID: "abc123",
	})
	require.NoError(t, err)
	first, err := message.Construct(message.ConstructArgs{
		HTML:        `<img src="cid:abc123">`,
		Attachments: []*message.Message{att},
	})
	require.NoError(t, err)
	second, err := message.Construct(message.ConstructArgs{
		Text:        "attached twice",
		Attachments: []*message.Message{att},
	})
	require.NoError(t, err)

	assert.Nil(t, att.Parent())
	for _, msg := range []*message.Message{first, second} {
		inline := msg.InlineAttachments()
		require.Contains(t, inline, "abc123")
		assert.Equal(t, "multipart/related", inline["abc123"].Parent().MediaType())
		assert.Same(t, msg.Child(0), inline["abc123"].Parent())
		assert.Empty(t, msg.Attachments())
	}

	// Changing one copy leaves the others alone.
	first.InlineAttachments()["abc123"].Set("Content-Description", "logo")
	assert.False(t, att.Has("Content-Description"))
	assert.False(t, second.InlineAttachments()["abc123"].Has("Content-Description"))
}

func TestConstructAttachmentFromUploadedFile(t *testing.T) {
	img := sampleImage(t)
	file := &uploadedFile{
		Reader:      bytes.NewReader(img),
		name:        sampleImageFilename,
		contentType: "image/png",
	}
	att, err := message.NewAttachmentFromFile(file, "abc123")
	require.NoError(t, err)
	assert.Equal(t, `image/png; name="sample_image.png"`, att.Get("Content-Type"))
	assert.Equal(t, `inline; filename="sample_image.png"`, att.Get("Content-Disposition"))
	assert.Equal(t, "<abc123>", att.Get("Content-ID"))
	assert.Equal(t, img, att.ContentBytes())
}

func TestConstructAttachmentFromUploadedFileGuessesType(t *testing.T) {
	file := &uploadedFile{Reader: bytes.NewReader([]byte("%PDF-1.4")), name: "report.pdf"}
	att, err := message.NewAttachmentFromFile(file, "")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", att.MediaType())
	assert.Equal(t, `attachment; filename="report.pdf"`, att.Get("Content-Disposition"))

	file = &uploadedFile{Reader: bytes.NewReader([]byte{0, 1, 2}), name: "blob"}
	att, err = message.NewAttachmentFromFile(file, "")
	require.NoError(t, err)
	assert.Equal(t, "application/octet-stream", att.MediaType())
}

func TestConstructAttachmentFromBase64Data(t *testing.T) {
	img := sampleImage(t)
	content := []byte(base64.StdEncoding.EncodeToString(img))
	att, err := message.NewAttachment("image/png", content, message.AttachmentOptions{Base64: true})
	require.NoError(t, err)
	assert.Equal(t, img, att.ContentBytes())
	assert.Equal(t, "attachment", att.Get("Content-Disposition"))

	_, err = message.NewAttachment("image/png", []byte("!!!"), message.AttachmentOptions{Base64: true})
	var cerr *message.ConfigurationError
	assert.True(t, errors.As(err, &cerr), "got %v", err)
}

func TestNewTextAttachment(t *testing.T) {
	att, err := message.NewTextAttachment("text/plain", "café", message.AttachmentOptions{
		Charset:  "iso-8859-1",
		Filename: "menu.txt",
	})
	require.NoError(t, err)
	assert.Equal(t, `text/plain; name="menu.txt"; charset="iso-8859-1"`, att.Get("Content-Type"))
	assert.Equal(t, "base64", att.Get("Content-Transfer-Encoding"))
	assert.Equal(t, []byte("caf\xe9"), att.ContentBytes())
	assert.Equal(t, "café", att.ContentText())

	att, err = message.NewTextAttachment("text/plain", "text attachment", message.AttachmentOptions{})
	require.NoError(t, err)
	assert.Equal(t, `text/plain; charset="utf-8"`, att.Get("Content-Type"))
	assert.Equal(t, "7bit", att.Get("Content-Transfer-Encoding"))
	assert.True(t, att.IsAttachment())
}

func TestNewAttachmentErrors(t *testing.T) {
	testCases := []struct {
		name        string
		contentType string
		opts        message.AttachmentOptions
	}{
		{"empty type", "", message.AttachmentOptions{}},
		{"multipart", "multipart/mixed", message.AttachmentOptions{}},
		{"unknown charset", "text/plain", message.AttachmentOptions{Charset: "x-no-such-charset"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := message.NewAttachment(tc.contentType, []byte("x"), tc.opts)
			var cerr *message.ConfigurationError
			assert.True(t, errors.As(err, &cerr), "got %v", err)
		})
	}

	_, err := message.NewTextAttachment("text/plain", "x", message.AttachmentOptions{
		Charset: "x-no-such-charset",
	})
	var cerr *message.ConfigurationError
	assert.True(t, errors.As(err, &cerr), "got %v", err)
}

func TestConstructRFC822AttachmentFromData(t *testing.T) {
	original := string(readTestData(t, "original.eml"))
	att, err := message.NewTextAttachment("message/rfc822", original, message.AttachmentOptions{})
	require.NoError(t, err)
	assert.Equal(t, "message/rfc822", att.MediaType())
	assert.Equal(t, message.KindEncapsulated, att.Kind())
	assert.True(t, att.IsAttachment())
	assert.Equal(t, original, att.ContentText())

	orig := att.Message()
	require.NotNil(t, orig)
	assert.Equal(t, "Original message", orig.Get("Subject"))
	assert.Equal(t, "multipart/related", orig.MediaType())
	inline := orig.InlineAttachments()
	require.Contains(t, inline, "abc123")
	assert.Equal(t, sampleImage(t), inline["abc123"].ContentBytes())
}
