package spreadsheet_test

import (
	"bytes"
	"testing"

	"github.com/labtrack/labtrack-client/internal/domain"
	"github.com/labtrack/labtrack-client/internal/expiry"
	"github.com/labtrack/labtrack-client/internal/spreadsheet"
	"github.com/labtrack/labtrack-client/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func readRows(t *testing.T, book []byte, sheet string) [][]string {
	t.Helper()
	f, err := excelize.OpenReader(bytes.NewReader(book))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	rows, err := f.GetRows(sheet)
	require.NoError(t, err)
	return rows
}

func TestInboundWorkbook_ReadBack(t *testing.T) {
	reqs := []domain.InboundRequest{
		{BatchNo: "B1", InboundNo: "IN1", MaterialCode: "MAT-001", MaterialName: "Ethanol", Unit: "bottle", Quantity: 12, ExpiryDate: "2027-01-31"},
		{BatchNo: "B2", InboundNo: "IN2", MaterialCode: "MAT-002", MaterialName: "Gloves", Category: "PPE", Spec: "M", Unit: "box", Brand: "Acme", Quantity: 3, ExpiryDate: "2028-06-30"},
	}

	book, err := spreadsheet.InboundWorkbook(reqs)
	require.NoError(t, err)

	got, err := spreadsheet.ReadInboundSheet(bytes.NewReader(book))
	require.NoError(t, err)
	assert.Equal(t, reqs, got)
}

func TestReadInboundSheet_Errors(t *testing.T) {
	t.Run("missing column", func(t *testing.T) {
		f := excelize.NewFile()
		defer func() { _ = f.Close() }()
		require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]interface{}{"Batch No", "Quantity"}))
		buf, err := f.WriteToBuffer()
		require.NoError(t, err)

		_, err = spreadsheet.ReadInboundSheet(buf)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "missing column")
	})

	t.Run("bad quantity", func(t *testing.T) {
		book, err := spreadsheet.InboundWorkbook([]domain.InboundRequest{{BatchNo: "B1", Quantity: 1}})
		require.NoError(t, err)

		f, err := excelize.OpenReader(bytes.NewReader(book))
		require.NoError(t, err)
		require.NoError(t, f.SetCellValue(spreadsheet.InboundSheet, "I2", "lots"))
		buf, err := f.WriteToBuffer()
		require.NoError(t, err)
		_ = f.Close()

		_, err = spreadsheet.ReadInboundSheet(buf)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "row 2")
	})

	t.Run("not a workbook", func(t *testing.T) {
		_, err := spreadsheet.ReadInboundSheet(bytes.NewReader([]byte("plain text")))
		assert.Error(t, err)
	})
}

func TestMaterialWorkbook(t *testing.T) {
	book, err := spreadsheet.MaterialWorkbook([]domain.CreateMaterialRequest{
		{Code: "MAT-001", Name: "Ethanol", Unit: "bottle", ExpiryAlertDays: testutil.PtrInt(30)},
	})
	require.NoError(t, err)

	rows := readRows(t, book, spreadsheet.MaterialSheet)
	require.Len(t, rows, 2)
	assert.Equal(t, spreadsheet.MaterialHeader, rows[0])
	assert.Equal(t, "MAT-001", rows[1][0])
	assert.Equal(t, "30", rows[1][7])
	assert.Equal(t, "", rows[1][6])
}

func TestInventoryReport(t *testing.T) {
	item := testutil.InventoryFixture(1, testutil.MaterialFixture(1), 8, testutil.DaysFromToday(10))
	status := expiry.Classify(item.ExpiryDate.Time, expiry.DefaultAlertDays, testutil.Today)

	book, err := spreadsheet.InventoryReport([]spreadsheet.ReportRow{{Item: item, Status: status}})
	require.NoError(t, err)

	rows := readRows(t, book, spreadsheet.ReportSheet)
	require.Len(t, rows, 2)
	assert.Equal(t, spreadsheet.ReportHeader, rows[0])
	assert.Equal(t, []string{
		"B0001", "IN0001", "MAT-001", "Reagent 1", "500ml", "bottle",
		"8", "8", item.ExpiryDate.String(), "10", "Expiring soon",
	}, rows[1])
}
