package emailsvc

import (
	"bytes"
	"log"
	"net/mail"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pinhaljunior/aventureiros/core"
	testutil "github.com/pinhaljunior/aventureiros/tests"
)

func TestConsoleService(t *testing.T) {
	conf := core.NewTestConfig()

	t.Run("mock keeps sent messages", func(t *testing.T) {
		svc := NewConsoleServiceMock(conf, &testutil.Logger{})
		svc.SendMessages(
			&core.EmailMessage{
				To:      []mail.Address{{Name: "Ana", Address: "ana@example.com"}},
				Subject: "Olá",
				BodyStr: "Bem-vinda",
			},
			&core.EmailMessage{Subject: "no recipients", BodyStr: "dropped"},
		)

		sent := svc.Sent()
		require.Len(t, sent, 1)
		assert.Equal(t, "Olá", sent[0].Subject)
		assert.Equal(t, "Bem-vinda", sent[0].TextContent)
	})

	t.Run("prints the message", func(t *testing.T) {
		var buf bytes.Buffer
		svc := NewConsoleService(conf, &testutil.Logger{}, log.New(&buf, "", 0))
		msg := &core.EmailMessage{
			To:      []mail.Address{{Address: "ana@example.com"}},
			Subject: "Recibo",
			BodyStr: "Pagamento confirmado",
		}
		require.NoError(t, msg.Attach(strings.NewReader("a;b\n1;2\n"), "recibo.csv", "text/csv"))
		require.NoError(t, msg.Render())
		require.NoError(t, svc.send(*msg))

		out := buf.String()
		assert.Contains(t, out, "Subject: [Aventureiros] Recibo")
		assert.Contains(t, out, "To: <ana@example.com>")
		assert.Contains(t, out, "Pagamento confirmado")
		assert.Contains(t, out, "multipart/mixed")
		assert.Contains(t, out, "filename=recibo.csv")
	})
}
