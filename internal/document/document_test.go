package document

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func fixedClock() func() time.Time {
	return func() time.Time {
		return time.Date(2024, 7, 15, 9, 30, 0, 0, time.UTC)
	}
}

func parse(t *testing.T, data []byte) *etree.Document {
	t.Helper()
	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(data))
	return doc
}

func text(t *testing.T, doc *etree.Document, path string) string {
	t.Helper()
	el := doc.FindElement(path)
	require.NotNil(t, el, "element %s not found", path)
	return el.Text()
}

func TestNewBuilder_ValidatesTemplates(t *testing.T) {
	b, err := NewBuilder()
	require.NoError(t, err)
	require.NotNil(t, b)
}

func TestBuilder_MasterData(t *testing.T) {
	b, err := NewBuilder(WithClock(fixedClock()))
	require.NoError(t, err)

	data, err := b.MasterData(MasterDataParams{
		MessageID:      "MaSi0a1b2c3d4e5f0a1b2c3d4e5f",
		TransactionID:  "abc123def456abc123def456abc123de",
		DSO:            "6427020100007",
		PointID:        "642702010000000019",
		MGA:            "6427020100000000",
		Type:           "AG01",
		Street:         "Mannerheimintie",
		BuildingNumber: "12",
		Zip:            "00100",
		City:           "Helsinki",
		RemoteReadable: "1",
		MeteringMethod: "E13",
	})
	require.NoError(t, err)

	doc := parse(t, data)
	require.Equal(t, "MaSi0a1b2c3d4e5f0a1b2c3d4e5f", text(t, doc, pathHeaderID))
	require.Equal(t, "2024-07-15T09:30:00Z", text(t, doc, pathHeaderCreation))
	require.Equal(t, "6427020100007", text(t, doc, pathPhysicalSender))
	require.Equal(t, "6427020100007", text(t, doc, pathJuridicalSender))
	require.Equal(t, "2024-07-15T00:00:00Z", text(t, doc, "//mde:StartOfOccurrence"))
	require.Equal(t, "642702010000000019", text(t, doc, "//mde:MeteringPointUsedDomainLocation/mde:Identification"))
	require.Equal(t, "AG01", text(t, doc, "//mde:MeteringPointUsedDomainLocation/mde:Type"))
	require.Equal(t, "Mannerheimintie", text(t, doc, "//mde:MeteringPointAddress/mde:StreetName"))
	require.Equal(t, "00100", text(t, doc, "//mde:MeteringPointAddress/mde:PostCode"))
	require.Equal(t, "6427020100000000", text(t, doc, "//mde:MeteringGridAreaUsedDomainLocation/mde:Identification"))
}

func TestBuilder_MasterData_TemplateNotMutated(t *testing.T) {
	b, err := NewBuilder(WithClock(fixedClock()))
	require.NoError(t, err)

	params := MasterDataParams{
		MessageID: "MaSi0a1b2c3d4e5f0a1b2c3d4e5f",
		DSO:       "6427020100007",
		PointID:   "642702010000000019",
	}
	_, err = b.MasterData(params)
	require.NoError(t, err)

	params.PointID = "642702010000000026"
	data, err := b.MasterData(params)
	require.NoError(t, err)

	doc := parse(t, data)
	require.Equal(t, "642702010000000026", text(t, doc, "//mde:MeteringPointUsedDomainLocation/mde:Identification"))
}

func TestBuilder_AccountingTimeSeries(t *testing.T) {
	b, err := NewBuilder(WithClock(fixedClock()))
	require.NoError(t, err)

	start := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	data, err := b.AccountingTimeSeries(TimeSeriesParams{
		MessageID:     "abc123def456abc123def456abc123de",
		TransactionID: "def456abc123def456abc123def456ab",
		DSO:           "6427020100007",
		PointID:       "642702010000000019",
		MGA:           "6427020100000000",
		MetricID:      MetricActiveEnergy,
		Unit:          UnitActiveEnergy,
		Start:         start,
		End:           start.Add(3 * time.Hour),
		Observations: []Observation{
			{Sequence: 1, Quantity: decimal.RequireFromString("1.5"), Quality: QualityOK},
			{Sequence: 2, Quantity: decimal.RequireFromString("2.0"), Quality: QualityEstimated},
			{Sequence: 3, Quantity: decimal.RequireFromString("0.3"), Quality: QualityOK},
		},
	})
	require.NoError(t, err)

	doc := parse(t, data)
	require.Equal(t, "2024-07-01T00:00:00Z", text(t, doc, pathSeriesStart))
	require.Equal(t, "2024-07-01T03:00:00Z", text(t, doc, pathSeriesEnd))
	require.Equal(t, MetricActiveEnergy, text(t, doc, pathSeriesProductID))

	obs := doc.FindElements("//ets:Observations/ets:Observation")
	require.Len(t, obs, 3)
	require.Equal(t, "1", obs[0].FindElement("ets:Sequence").Text())
	require.Equal(t, "1.5", obs[0].FindElement("ets:EnergyObservation/ets:Quantity").Text())

	// Accounting series always carry the quality element, empty for OK.
	require.NotNil(t, obs[0].FindElement("ets:EnergyObservation/ets:QualityCode"))
	require.Equal(t, QualityEstimated, obs[1].FindElement("ets:EnergyObservation/ets:QualityCode").Text())
}

func TestBuilder_ExchangeTimeSeries_OmitsQualityWhenOK(t *testing.T) {
	b, err := NewBuilder(WithClock(fixedClock()))
	require.NoError(t, err)

	start := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	data, err := b.ExchangeTimeSeries(TimeSeriesParams{
		MessageID:     "abc123def456abc123def456abc123de",
		TransactionID: "def456abc123def456abc123def456ab",
		DSO:           "6427020100007",
		PointID:       "642702010000000019",
		InArea:        "6427020100000000",
		OutArea:       "6427020200000000",
		MetricID:      MetricActiveEnergy,
		Unit:          UnitActiveEnergy,
		Start:         start,
		End:           start.Add(2 * time.Hour),
		Observations: []Observation{
			{Sequence: 1, Quantity: decimal.RequireFromString("44.7"), Quality: QualityOK},
			{Sequence: 2, Quantity: decimal.RequireFromString("18.2"), Quality: QualityRevised},
		},
	})
	require.NoError(t, err)

	doc := parse(t, data)
	require.Equal(t, "6427020100000000", text(t, doc, "//ets:InAreaUsedDomainLocation/ets:Identification"))
	require.Equal(t, "6427020200000000", text(t, doc, "//ets:OutAreaUsedDomainLocation/ets:Identification"))

	obs := doc.FindElements("//ets:Observations/ets:Observation")
	require.Len(t, obs, 2)
	require.Nil(t, obs[0].FindElement("ets:EnergyObservation/ets:QualityCode"))
	require.Equal(t, QualityRevised, obs[1].FindElement("ets:EnergyObservation/ets:QualityCode").Text())
}

func TestBuilder_Contract(t *testing.T) {
	b, err := NewBuilder(WithClock(fixedClock()))
	require.NoError(t, err)

	data, err := b.Contract(ContractParams{
		MessageID:         "MaSi0a1b2c3d4e5f0a1b2c3d4e5f",
		TransactionID:     "abc123def456abc123def456abc123de",
		DDQ:               "6427020200004",
		PointID:           "642702010000000019",
		MGA:               "6427020100000000",
		ContractReference: "sopimus_642702010000000019",
		ConsumerID:        "150784-123X",
		ConsumerName:      "Matti Virtanen",
	})
	require.NoError(t, err)

	doc := parse(t, data)
	require.Equal(t, "6427020200004", text(t, doc, pathPhysicalSender))
	require.Equal(t, "6427020200004", text(t, doc, "//cte:SupplierOfContract/cte:Identification"))
	require.Equal(t, "642702010000000019", text(t, doc, "//cte:MeteringPointOfContract/cte:Identification"))
	require.Equal(t, "sopimus_642702010000000019", text(t, doc, "//cte:MasterDataContract/cte:ContractReference"))
	require.Equal(t, "150784-123X", text(t, doc, "//cte:ConsumerInvolvedCustomerParty/cte:Identification"))
	require.Equal(t, "Matti Virtanen", text(t, doc, "//cte:ConsumerInvolvedCustomerParty/cte:Name"))
}

func TestBuilder_DequeueRequest(t *testing.T) {
	b, err := NewBuilder()
	require.NoError(t, err)

	data, err := b.DequeueRequest("DOC-12345")
	require.NoError(t, err)

	doc := parse(t, data)
	require.Equal(t, "DOC-12345", text(t, doc, "//DocumentReferenceNumber"))
}

func TestFilenames(t *testing.T) {
	start := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	require.Equal(t, "mp_642702010000000019.xml", MasterDataFilename("642702010000000019"))
	require.Equal(t, "ts_642702010000000019_01072024.xml", AccountingSeriesFilename("642702010000000019", start))
	require.Equal(t, "ex_642702010000000019_01072024.xml", ExchangeSeriesFilename("642702010000000019", start))
	require.Equal(t, "contract_642702010000000019.xml", ContractFilename("642702010000000019"))
}

func TestWriteFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "xml")
	path, err := WriteFile(dir, "mp_1.xml", []byte("<doc/>"))
	require.NoError(t, err)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "<doc/>", string(content))

	// No stray temp files left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}
