package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/aclindsa/ofxgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcp-open-lab/zenny-books-sub002/internal/common"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/model"
)

const ofxHeader = `OFXHEADER:100
DATA:OFXSGML
VERSION:102
SECURITY:NONE
ENCODING:USASCII
CHARSET:1252
COMPRESSION:NONE
OLDFILEUID:NONE
NEWFILEUID:NONE

<OFX>
<SIGNONMSGSRSV1>
<SONRS>
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<DTSERVER>20260315120000[0:GMT]
<LANGUAGE>ENG
</SONRS>
</SIGNONMSGSRSV1>
`

func stmtTrn(kind, posted, amount, fitid, name string) string {
	return fmt.Sprintf("<STMTTRN>\n<TRNTYPE>%s\n<DTPOSTED>%s120000[0:GMT]\n<TRNAMT>%s\n<FITID>%s\n<NAME>%s\n</STMTTRN>\n",
		kind, posted, amount, fitid, name)
}

func bankOFX(currency string, trns ...string) string {
	return ofxHeader + `<BANKMSGSRSV1>
<STMTTRNRS>
<TRNUID>1
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<STMTRS>
<CURDEF>` + currency + `
<BANKACCTFROM>
<BANKID>021000021
<ACCTID>5550001111
<ACCTTYPE>CHECKING
</BANKACCTFROM>
<BANKTRANLIST>
<DTSTART>20260301120000[0:GMT]
<DTEND>20260331120000[0:GMT]
` + strings.Join(trns, "") + `</BANKTRANLIST>
<LEDGERBAL>
<BALAMT>2400.00
<DTASOF>20260331120000[0:GMT]
</LEDGERBAL>
</STMTRS>
</STMTTRNRS>
</BANKMSGSRSV1>
</OFX>`
}

func cardOFX(trns ...string) string {
	return ofxHeader + `<CREDITCARDMSGSRSV1>
<CCSTMTTRNRS>
<TRNUID>1
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<CCSTMTRS>
<CURDEF>CAD
<CCACCTFROM>
<ACCTID>4000123412341234
</CCACCTFROM>
<BANKTRANLIST>
<DTSTART>20260301120000[0:GMT]
<DTEND>20260331120000[0:GMT]
` + strings.Join(trns, "") + `</BANKTRANLIST>
<LEDGERBAL>
<BALAMT>-310.00
<DTASOF>20260331120000[0:GMT]
</LEDGERBAL>
</CCSTMTRS>
</CCSTMTTRNRS>
</CREDITCARDMSGSRSV1>
</OFX>`
}

func TestOFXExtractor_Extract(t *testing.T) {
	tests := []struct {
		name      string
		data      string
		wantLines int
		wantErr   bool
	}{
		{
			name: "bank statement",
			data: bankOFX("USD",
				stmtTrn("DEBIT", "20260304", "-18.40", "B1", "POS PURCHASE BLUE BOTTLE"),
				stmtTrn("CREDIT", "20260315", "3200.00", "B2", "ACME PAYROLL"),
				stmtTrn("CHECK", "20260320", "-1500.00", "B3", "CHECK 2041")),
			wantLines: 3,
		},
		{
			name: "credit card statement",
			data: cardOFX(
				stmtTrn("DEBIT", "20260308", "-64.99", "C1", "CHEVRON 0091"),
				stmtTrn("DEBIT", "20260311", "-22.00", "C2", "SPOTIFY")),
			wantLines: 2,
		},
		{name: "not OFX", data: "date,amount\n2026-03-01,10", wantErr: true},
		{name: "empty", data: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewOFXExtractor(nil)
			got, err := e.Extract(context.Background(), File{Name: "stmt.ofx", Format: "ofx", Data: []byte(tt.data)}, Hints{})
			if tt.wantErr {
				require.Error(t, err)
				var providerErr *common.ProviderError
				assert.True(t, errors.As(err, &providerErr))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, model.DocumentKindBankStatement, got.Kind)
			assert.Len(t, got.Lines, tt.wantLines)
		})
	}
}

func TestOFXExtractor_LineMapping(t *testing.T) {
	data := bankOFX("USD",
		stmtTrn("DEBIT", "20260304", "-18.40", "B1", "POS PURCHASE BLUE BOTTLE"),
		stmtTrn("CREDIT", "20260315", "3200.00", "B2", "ACME PAYROLL"))

	got, err := NewOFXExtractor(nil).Extract(context.Background(), File{Name: "march.qfx", Data: []byte(data)}, Hints{})
	require.NoError(t, err)
	require.Len(t, got.Lines, 2)
	assert.Equal(t, "USD", got.Currency)

	coffee := got.Lines[0]
	assert.Equal(t, "B1", coffee.ExternalID)
	assert.Equal(t, "5550001111", coffee.AccountID)
	assert.Equal(t, "BLUE BOTTLE", coffee.MerchantName)
	assert.Equal(t, "18.4", coffee.Amount.String())
	assert.Equal(t, model.TransactionTypeExpense, coffee.Type)
	assert.Equal(t, 4, coffee.Date.Day())
	assert.Equal(t, time.March, coffee.Date.Month())

	pay := got.Lines[1]
	assert.Equal(t, "ACME PAYROLL", pay.MerchantName)
	assert.Equal(t, "3200", pay.Amount.String())
	assert.Equal(t, model.TransactionTypeIncome, pay.Type)
}

func TestOFXExtractor_CardCurrencyAndDateWindow(t *testing.T) {
	data := cardOFX(
		stmtTrn("DEBIT", "20260308", "-64.99", "C1", "CHEVRON 0091"),
		stmtTrn("DEBIT", "20260325", "-22.00", "C2", "SPOTIFY"))

	from := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)
	got, err := NewOFXExtractor(nil).Extract(context.Background(), File{Name: "card.ofx", Data: []byte(data)}, Hints{DateFrom: &from})
	require.NoError(t, err)
	assert.Equal(t, "CAD", got.Currency)
	require.Len(t, got.Lines, 1)
	assert.Equal(t, "SPOTIFY", got.Lines[0].MerchantName)
	assert.Equal(t, "4000123412341234", got.Lines[0].AccountID)
}

func TestPreprocessOFX(t *testing.T) {
	in := "\n\n  <OFX>\n<SEVERITY>Info</SEVERITY>\n<CODE\n"
	out := preprocessOFX(in)
	assert.True(t, strings.HasPrefix(out, "<OFX>"))
	assert.Contains(t, out, "<SEVERITY>INFO</SEVERITY>")
	assert.Contains(t, out, "<CODE>")
}

func TestMerchantName(t *testing.T) {
	tests := []struct {
		name string
		tx   ofxgo.Transaction
		want string
	}{
		{"strips POS prefix", ofxgo.Transaction{Name: "POS PURCHASE TRADER JOES"}, "TRADER JOES"},
		{"strips ACH prefix", ofxgo.Transaction{Name: "ACH DEBIT CITY WATER"}, "CITY WATER"},
		{"strips date stamp", ofxgo.Transaction{Name: "03/14 LYFT RIDE"}, "LYFT RIDE"},
		{"generic name uses memo", ofxgo.Transaction{Name: "PAYMENT", Memo: "GEICO AUTO"}, "GEICO AUTO"},
		{"payee wins", ofxgo.Transaction{Name: "DEBIT", Payee: &ofxgo.Payee{Name: "Comcast"}}, "Comcast"},
		{"trims", ofxgo.Transaction{Name: "  NETFLIX.COM  "}, "NETFLIX.COM"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, merchantName(tt.tx))
		})
	}
}
