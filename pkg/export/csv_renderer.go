package export

import (
	"bytes"
	"encoding/csv"
	"time"

	log "github.com/sirupsen/logrus"
)

const csvDateTimeLayout = "02/01/2006 15:04"

var csvHeader = []string{
	"Event Name",
	"Event Description",
	"Start DateTime",
	"End DateTime",
	"Duration",
	"Created DateTime",
	"Colour",
	"Type",
}

type CsvRenderer interface {
	Render(records []ExportRecord) ([]byte, error)
}

type CsvRendererImpl struct {
}

func NewCsvRenderer() *CsvRendererImpl {
	return &CsvRendererImpl{}
}

// Render writes the header and one row per record, in the given order.
func (c *CsvRendererImpl) Render(records []ExportRecord) ([]byte, error) {
	var b bytes.Buffer
	writer := csv.NewWriter(&b)
	if err := writer.Write(csvHeader); err != nil {
		log.Errorf("Error writing to csv: %v", err)
		return nil, err
	}
	for _, record := range records {
		err := writer.Write([]string{
			record.Name,
			record.Description,
			formatDateTime(record.Start),
			formatDateTime(record.End),
			record.DurationText,
			formatDateTime(record.Created),
			record.Colour.String(),
			record.Type,
		})
		if err != nil {
			log.Errorf("Error writing to csv: %v", err)
			return nil, err
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		log.Errorf("Error writing to csv: %v", err)
		return nil, err
	}
	return b.Bytes(), nil
}

func formatDateTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(csvDateTimeLayout)
}
