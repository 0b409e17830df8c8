// Package document assembles the outbound XML payloads from embedded
// templates. Templates carry the full message skeleton; the builder fills
// identification, party, period and observation fields in place.
package document

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"
)

//go:embed templates/*.xml
var templateFS embed.FS

// Metric product codes.
const (
	MetricActiveEnergy   = "8716867000030" // kWh
	MetricReactiveEnergy = "8716867000139" // varh

	UnitActiveEnergy   = "KWH"
	UnitReactiveEnergy = "KVR"
)

// Observation quality codes. An empty code means a plain OK reading.
const (
	QualityOK        = ""
	QualityRevised   = "Z01"
	QualityUncertain = "Z02"
	QualityEstimated = "99"
)

const timestampFormat = "2006-01-02T15:04:05Z"

// template names inside templateFS.
const (
	tplMasterData   = "templates/masterdata.xml"
	tplTimeSeriesAP = "templates/timeseries_ap.xml"
	tplTimeSeriesRP = "templates/timeseries_rp.xml"
	tplContract     = "templates/contract.xml"
	tplPeek         = "templates/peek.xml"
	tplDequeue      = "templates/dequeue.xml"
)

// fieldSchema lists the element paths a template must provide. Checked once
// at builder construction so a broken template fails fast instead of
// producing documents with silently missing fields.
var fieldSchema = map[string][]string{
	tplMasterData: {
		pathHeaderID, pathHeaderCreation, pathPhysicalSender, pathJuridicalSender,
		"//mde:Identification",
		"//mde:StartOfOccurrence",
		"//mde:MeteringPointUsedDomainLocation/mde:Identification",
		"//mde:MeteringPointUsedDomainLocation/mde:Type",
		"//mde:MeteringPointAddress/mde:StreetName",
		"//mde:MeteringPointAddress/mde:BuildingNumber",
		"//mde:MeteringPointAddress/mde:PostCode",
		"//mde:MeteringPointAddress/mde:CityName",
		"//mde:MPDetailMeteringPointCharacteristic/mde:RemoteReadable",
		"//mde:MPDetailMeteringPointCharacteristic/mde:MeteringMethod",
		"//mde:MeteringGridAreaUsedDomainLocation/mde:Identification",
	},
	tplTimeSeriesAP: {
		pathHeaderID, pathHeaderCreation, pathPhysicalSender, pathJuridicalSender,
		pathSeriesTransactionID, pathSeriesProductID, pathSeriesUnit,
		pathSeriesPointID, pathSeriesStart, pathSeriesEnd, pathSeriesObservations,
		"//ets:MeteringGridAreaUsedDomainLocation/ets:Identification",
	},
	tplTimeSeriesRP: {
		pathHeaderID, pathHeaderCreation, pathPhysicalSender, pathJuridicalSender,
		pathSeriesTransactionID, pathSeriesProductID, pathSeriesUnit,
		pathSeriesPointID, pathSeriesStart, pathSeriesEnd, pathSeriesObservations,
		"//ets:InAreaUsedDomainLocation/ets:Identification",
		"//ets:OutAreaUsedDomainLocation/ets:Identification",
	},
	tplContract: {
		pathHeaderID, pathHeaderCreation, pathPhysicalSender, pathJuridicalSender,
		"//cte:Identification",
		"//cte:StartOfOccurrence",
		"//cte:MeteringPointOfContract/cte:Identification",
		"//cte:MeteringGridAreaUsedDomainLocation/cte:Identification",
		"//cte:SupplierOfContract/cte:Identification",
		"//cte:MasterDataContract/cte:ContractReference",
		"//cte:ConsumerInvolvedCustomerParty/cte:Identification",
		"//cte:ConsumerInvolvedCustomerParty/cte:Name",
	},
	tplPeek:    {},
	tplDequeue: {"//DocumentReferenceNumber"},
}

// Shared header paths.
const (
	pathHeaderID        = "//Header/hdr:Identification"
	pathHeaderCreation  = "//Header/hdr:Creation"
	pathPhysicalSender  = "//hdr:PhysicalSenderEnergyParty/hdr:Identification"
	pathJuridicalSender = "//hdr:JuridicalSenderEnergyParty/hdr:Identification"
)

// Time-series paths shared by both variants.
const (
	pathSeriesTransactionID = "//Transaction/ets:Identification"
	pathSeriesProductID     = "//ets:ProductIncludedProductCharacteristic/ets:Identification"
	pathSeriesUnit          = "//ets:ProductIncludedProductCharacteristic/ets:UnitType"
	pathSeriesPointID       = "//ets:MeteringPointUsedDomainLocation/ets:Identification"
	pathSeriesStart         = "//ets:Period/ets:Start"
	pathSeriesEnd           = "//ets:Period/ets:End"
	pathSeriesObservations  = "//ets:Period/ets:Observations"
)

// Builder renders documents from the embedded templates.
type Builder struct {
	templates map[string]*etree.Document
	now       func() time.Time
}

// Option configures a Builder.
type Option func(*Builder)

// WithClock overrides the creation-timestamp source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) { b.now = now }
}

// NewBuilder parses and validates every embedded template.
func NewBuilder(opts ...Option) (*Builder, error) {
	b := &Builder{
		templates: make(map[string]*etree.Document, len(fieldSchema)),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}

	for name, paths := range fieldSchema {
		raw, err := templateFS.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("failed to read template %s: %w", name, err)
		}
		doc := etree.NewDocument()
		if err := doc.ReadFromBytes(raw); err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		for _, path := range paths {
			if doc.FindElement(path) == nil {
				return nil, fmt.Errorf("template %s is missing element %s", name, path)
			}
		}
		b.templates[name] = doc
	}
	return b, nil
}

func (b *Builder) load(name string) *etree.Document {
	return b.templates[name].Copy()
}

func setText(doc *etree.Document, path, value string) {
	doc.FindElement(path).SetText(value)
}

func (b *Builder) fillHeader(doc *etree.Document, messageID, sender string) {
	setText(doc, pathHeaderID, messageID)
	setText(doc, pathHeaderCreation, b.now().UTC().Format(timestampFormat))
	setText(doc, pathPhysicalSender, sender)
	setText(doc, pathJuridicalSender, sender)
}

// lastMidnight returns the UTC midnight preceding now.
func (b *Builder) lastMidnight() string {
	t := b.now().UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).Format(timestampFormat)
}

// MasterDataParams fills the metering-point registration event.
type MasterDataParams struct {
	MessageID      string
	TransactionID  string
	DSO            string
	PointID        string
	MGA            string
	Type           string
	Street         string
	BuildingNumber string
	Zip            string
	City           string
	RemoteReadable string
	MeteringMethod string
}

// MasterData renders a metering-point registration event.
func (b *Builder) MasterData(p MasterDataParams) ([]byte, error) {
	doc := b.load(tplMasterData)
	b.fillHeader(doc, p.MessageID, p.DSO)
	setText(doc, "//mde:Identification", p.TransactionID)
	setText(doc, "//mde:StartOfOccurrence", b.lastMidnight())
	setText(doc, "//mde:MeteringPointUsedDomainLocation/mde:Identification", p.PointID)
	setText(doc, "//mde:MeteringPointUsedDomainLocation/mde:Type", p.Type)
	setText(doc, "//mde:MeteringPointAddress/mde:StreetName", p.Street)
	setText(doc, "//mde:MeteringPointAddress/mde:BuildingNumber", p.BuildingNumber)
	setText(doc, "//mde:MeteringPointAddress/mde:PostCode", p.Zip)
	setText(doc, "//mde:MeteringPointAddress/mde:CityName", p.City)
	setText(doc, "//mde:MPDetailMeteringPointCharacteristic/mde:RemoteReadable", p.RemoteReadable)
	setText(doc, "//mde:MPDetailMeteringPointCharacteristic/mde:MeteringMethod", p.MeteringMethod)
	setText(doc, "//mde:MeteringGridAreaUsedDomainLocation/mde:Identification", p.MGA)
	return doc.WriteToBytes()
}

// Observation is one hourly slot in a time series.
type Observation struct {
	Sequence int
	Quantity decimal.Decimal
	Quality  string
}

// TimeSeriesParams fills an hourly energy time series. MGA is set for
// accounting points, InArea and OutArea for exchange points.
type TimeSeriesParams struct {
	MessageID     string
	TransactionID string
	DSO           string
	PointID       string
	MGA           string
	InArea        string
	OutArea       string
	MetricID      string
	Unit          string
	Start         time.Time
	End           time.Time
	Observations  []Observation
}

// AccountingTimeSeries renders an hourly series for an accounting point.
// Every observation carries a QualityCode element, empty for OK readings.
func (b *Builder) AccountingTimeSeries(p TimeSeriesParams) ([]byte, error) {
	doc := b.load(tplTimeSeriesAP)
	b.fillTimeSeries(doc, p, true)
	setText(doc, "//ets:MeteringGridAreaUsedDomainLocation/ets:Identification", p.MGA)
	return doc.WriteToBytes()
}

// ExchangeTimeSeries renders an hourly series for an exchange point. The
// QualityCode element is omitted for OK readings.
func (b *Builder) ExchangeTimeSeries(p TimeSeriesParams) ([]byte, error) {
	doc := b.load(tplTimeSeriesRP)
	b.fillTimeSeries(doc, p, false)
	setText(doc, "//ets:InAreaUsedDomainLocation/ets:Identification", p.InArea)
	setText(doc, "//ets:OutAreaUsedDomainLocation/ets:Identification", p.OutArea)
	return doc.WriteToBytes()
}

func (b *Builder) fillTimeSeries(doc *etree.Document, p TimeSeriesParams, alwaysQuality bool) {
	b.fillHeader(doc, p.MessageID, p.DSO)
	setText(doc, pathSeriesTransactionID, p.TransactionID)
	setText(doc, pathSeriesProductID, p.MetricID)
	setText(doc, pathSeriesUnit, p.Unit)
	setText(doc, pathSeriesPointID, p.PointID)
	setText(doc, pathSeriesStart, p.Start.UTC().Format(timestampFormat))
	setText(doc, pathSeriesEnd, p.End.UTC().Format(timestampFormat))

	container := doc.FindElement(pathSeriesObservations)
	for _, obs := range p.Observations {
		el := container.CreateElement("ets:Observation")
		el.CreateElement("ets:Sequence").SetText(fmt.Sprintf("%d", obs.Sequence))
		eo := el.CreateElement("ets:EnergyObservation")
		eo.CreateElement("ets:Quantity").SetText(obs.Quantity.StringFixed(1))
		if alwaysQuality || obs.Quality != QualityOK {
			eo.CreateElement("ets:QualityCode").SetText(obs.Quality)
		}
	}
}

// ContractParams fills a supply contract event.
type ContractParams struct {
	MessageID         string
	TransactionID     string
	DDQ               string
	PointID           string
	MGA               string
	ContractReference string
	ConsumerID        string
	ConsumerName      string
}

// Contract renders a supply contract event sent in the supplier role.
func (b *Builder) Contract(p ContractParams) ([]byte, error) {
	doc := b.load(tplContract)
	b.fillHeader(doc, p.MessageID, p.DDQ)
	setText(doc, "//cte:Identification", p.TransactionID)
	setText(doc, "//cte:StartOfOccurrence", b.lastMidnight())
	setText(doc, "//cte:MeteringPointOfContract/cte:Identification", p.PointID)
	setText(doc, "//cte:MeteringGridAreaUsedDomainLocation/cte:Identification", p.MGA)
	setText(doc, "//cte:SupplierOfContract/cte:Identification", p.DDQ)
	setText(doc, "//cte:MasterDataContract/cte:ContractReference", p.ContractReference)
	setText(doc, "//cte:ConsumerInvolvedCustomerParty/cte:Identification", p.ConsumerID)
	setText(doc, "//cte:ConsumerInvolvedCustomerParty/cte:Name", p.ConsumerName)
	return doc.WriteToBytes()
}

// PeekRequest renders the static queue peek request.
func (b *Builder) PeekRequest() ([]byte, error) {
	return b.load(tplPeek).WriteToBytes()
}

// DequeueRequest renders a queue dequeue request for one document
// reference number.
func (b *Builder) DequeueRequest(docRef string) ([]byte, error) {
	doc := b.load(tplDequeue)
	setText(doc, "//DocumentReferenceNumber", docRef)
	return doc.WriteToBytes()
}

// Output file names, keyed so a registration and its contract pair up.
func MasterDataFilename(pointID string) string {
	return fmt.Sprintf("mp_%s.xml", pointID)
}

func AccountingSeriesFilename(pointID string, start time.Time) string {
	return fmt.Sprintf("ts_%s_%s.xml", pointID, start.Format("02012006"))
}

func ExchangeSeriesFilename(pointID string, start time.Time) string {
	return fmt.Sprintf("ex_%s_%s.xml", pointID, start.Format("02012006"))
}

func ContractFilename(pointID string) string {
	return fmt.Sprintf("contract_%s.xml", pointID)
}

// WriteFile writes a rendered document under dir with a temp-file rename so
// a dispatcher scanning the directory never sees a partial document.
func WriteFile(dir, name string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create document directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to write document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}
	final := filepath.Join(dir, name)
	if err := os.Rename(tmpName, final); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to finalize document %s: %w", name, err)
	}
	return final, nil
}
