package analysis_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/weather-history-analyzer/internal/analysis"
	"github.com/couchcryptid/weather-history-analyzer/internal/dataset"
	"github.com/couchcryptid/weather-history-analyzer/internal/domain"
	"github.com/couchcryptid/weather-history-analyzer/internal/observability"
)

// --- fakes ---

type fakeCatalog struct {
	mu       sync.Mutex
	byYear   map[int][]domain.Granule
	failYear map[int]bool
	windows  []domain.SearchWindow
}

func (c *fakeCatalog) SearchGranules(_ context.Context, w domain.SearchWindow) ([]domain.Granule, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.windows = append(c.windows, w)
	if c.failYear[w.Year] {
		return nil, fmt.Errorf("cmr API error: status 503")
	}
	return c.byYear[w.Year], nil
}

// fakeDownloader "downloads" every URL listed in available.
type fakeDownloader struct {
	available map[string]bool
	requested []string
}

func (d *fakeDownloader) Tasks(urls []string) []domain.DownloadTask {
	tasks := make([]domain.DownloadTask, len(urls))
	for i, u := range urls {
		tasks[i] = domain.DownloadTask{SourceURL: u, DestinationPath: u, Variables: domain.Variables}
	}
	return tasks
}

func (d *fakeDownloader) Download(_ context.Context, tasks []domain.DownloadTask) []string {
	var paths []string
	for _, t := range tasks {
		d.requested = append(d.requested, t.SourceURL)
		if d.available[t.SourceURL] {
			paths = append(paths, t.DestinationPath)
		}
	}
	return paths
}

// gridFile is a one-day granule on a 2x2 grid with the same value at every cell.
type gridFile struct {
	times  []time.Time
	values map[string]float64
}

func (f *gridFile) Lat() []float64      { return []float64{0, 0.5} }
func (f *gridFile) Lon() []float64      { return []float64{0, 0.625} }
func (f *gridFile) Times() []time.Time  { return f.times }
func (f *gridFile) Variables() []string { return []string{"T2M", "QV2M", "TQL", "TQV"} }
func (f *gridFile) Close() error        { return nil }

func (f *gridFile) Series(name string, _, _ int) ([]float64, error) {
	out := make([]float64, len(f.times))
	for i := range out {
		out[i] = f.values[name]
	}
	return out, nil
}

// f32 rounds v to float32 precision, matching how MERRA-2 stores values.
func f32(v float64) float64 { return float64(float32(v)) }

// specificHumidity inverts the relative humidity formula at 1000 hPa.
func specificHumidity(tempK, rh float64) float64 {
	es := 611.2 * math.Exp(17.67*(tempK-273.15)/(tempK-29.65))
	e := rh / 100 * es
	return 0.622 * e / (100000 - 0.378*e)
}

func granuleURL(day time.Time) string {
	return "https://opendap.test/MERRA2_400.tavg1_2d_slv_Nx." + day.Format("20060102") + ".nc4"
}

// fixture builds years x days of hourly granules around July 15 with the
// given per-variable values.
type fixture struct {
	catalog    *fakeCatalog
	downloader *fakeDownloader
	files      map[string]dataset.GridFile
}

func newFixture(years []int, days int, values map[string]float64) *fixture {
	fx := &fixture{
		catalog:    &fakeCatalog{byYear: map[int][]domain.Granule{}, failYear: map[int]bool{}},
		downloader: &fakeDownloader{available: map[string]bool{}},
		files:      map[string]dataset.GridFile{},
	}
	for _, y := range years {
		for d := 0; d < days; d++ {
			day := time.Date(y, 7, 13+d, 0, 0, 0, 0, time.UTC)
			u := granuleURL(day)
			fx.catalog.byYear[y] = append(fx.catalog.byYear[y], domain.Granule{
				GranuleUR: u,
				RelatedURLs: []domain.RelatedURL{
					{URL: u, Description: "The OPENDAP location for the granule."},
				},
			})
			fx.downloader.available[u] = true
			times := make([]time.Time, 24)
			for h := range times {
				times[h] = day.Add(time.Duration(h)*time.Hour + 30*time.Minute)
			}
			fx.files[u] = &gridFile{times: times, values: values}
		}
	}
	return fx
}

func (fx *fixture) analyzer(opts ...analysis.Option) *analysis.Analyzer {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	open := func(p string) (dataset.GridFile, error) {
		f, ok := fx.files[p]
		if !ok {
			return nil, errors.New("not found")
		}
		return f, nil
	}
	return analysis.New(fx.catalog, fx.downloader, dataset.NewAssembler(open, logger),
		logger, observability.NewMetricsForTesting(), opts...)
}

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }

// atPoint fills in the fixture grid cell when the request has no coordinates.
func atPoint(req domain.AnalysisRequest) domain.AnalysisRequest {
	if req.Lat == nil {
		req.Lat = floatPtr(0.1)
	}
	if req.Lon == nil {
		req.Lon = floatPtr(0.1)
	}
	return req
}

func comfortableValues() map[string]float64 {
	return map[string]float64{
		"T2M":  f32(293.15),
		"QV2M": f32(specificHumidity(293.15, 50)),
		"TQL":  0,
		"TQV":  f32(25),
	}
}

// --- tests ---

func TestAnalyze_SyntheticComfortableScenario(t *testing.T) {
	fx := newFixture([]int{2023, 2022}, 5, comfortableValues())

	result, err := fx.analyzer().Analyze(context.Background(), domain.AnalysisRequest{
		TargetDate: "2024-07-15",
		Lat:        floatPtr(0.1),
		Lon:        floatPtr(0.1),
		TargetHour: intPtr(12),
		YearsBack:  intPtr(2),
	})
	require.NoError(t, err)

	assert.InDelta(t, 20.0, float64(result.MeanT2M), 1e-4)
	assert.InDelta(t, 20.0, float64(result.MaxT2M), 1e-4)
	assert.InDelta(t, 20.0, float64(result.MinT2M), 1e-4)
	assert.InDelta(t, 50.0, float64(result.MeanRH), 1e-3)
	assert.Equal(t, domain.Number(0), result.RainyDayPercentage)
	assert.Equal(t, 10, result.FilesUsed)
	assert.InDelta(t, 20.0, float64(result.Comfort.HeatIndex), 1e-4)
	assert.Equal(t, "Comfortable", result.Comfort.Label)
	assert.Equal(t, 80, result.Comfort.Score)

	require.Len(t, fx.catalog.windows, 2)
	assert.Equal(t, 2023, fx.catalog.windows[0].Year)
	assert.Equal(t, 2022, fx.catalog.windows[1].Year)
}

func TestAnalyze_RainyDays(t *testing.T) {
	values := comfortableValues()
	values["TQL"] = 0.1
	values["TQV"] = 19.9 // liquid fraction 0.5%
	fx := newFixture([]int{2023}, 4, values)

	result, err := fx.analyzer().Analyze(context.Background(), atPoint(domain.AnalysisRequest{
		TargetDate: "2024-07-15",
		YearsBack:  intPtr(1),
	}))
	require.NoError(t, err)
	assert.Equal(t, domain.Number(100), result.RainyDayPercentage)
}

func TestAnalyze_UsesDefaults(t *testing.T) {
	fx := newFixture([]int{2023, 2022, 2021, 2020, 2019}, 1, comfortableValues())

	result, err := fx.analyzer().Analyze(context.Background(), atPoint(domain.AnalysisRequest{TargetDate: "2024-07-15"}))
	require.NoError(t, err)

	assert.Len(t, fx.catalog.windows, 5)
	assert.Equal(t, 5, result.FilesUsed)
}

func TestAnalyze_CustomDefaults(t *testing.T) {
	fx := newFixture([]int{2023}, 1, comfortableValues())
	defaults := analysis.DefaultDefaults()
	defaults.YearsBack = 1

	_, err := fx.analyzer(analysis.WithDefaults(defaults)).Analyze(context.Background(), atPoint(domain.AnalysisRequest{TargetDate: "2024-07-15"}))
	require.NoError(t, err)
	assert.Len(t, fx.catalog.windows, 1)
}

func TestAnalyze_NoGranulesDownloaded(t *testing.T) {
	fx := newFixture([]int{2023}, 3, comfortableValues())
	fx.downloader.available = map[string]bool{}

	result, err := fx.analyzer().Analyze(context.Background(), atPoint(domain.AnalysisRequest{
		TargetDate: "2024-07-15",
		YearsBack:  intPtr(1),
	}))
	require.ErrorIs(t, err, domain.ErrNoData)

	resp := analysis.Respond(result, err)
	data, jsonErr := json.Marshal(resp)
	require.NoError(t, jsonErr)
	assert.JSONEq(t, `{"error":"No granules downloaded."}`, string(data))
	assert.Len(t, fx.downloader.requested, 3)
}

func TestAnalyze_SkipsFailedYear(t *testing.T) {
	fx := newFixture([]int{2023, 2022}, 2, comfortableValues())
	fx.catalog.failYear[2022] = true

	result, err := fx.analyzer().Analyze(context.Background(), atPoint(domain.AnalysisRequest{
		TargetDate: "2024-07-15",
		YearsBack:  intPtr(2),
	}))
	require.NoError(t, err)
	assert.Equal(t, 2, result.FilesUsed)
}

func TestAnalyze_AllYearsFail(t *testing.T) {
	fx := newFixture([]int{2023}, 1, comfortableValues())
	fx.catalog.failYear[2023] = true

	_, err := fx.analyzer().Analyze(context.Background(), atPoint(domain.AnalysisRequest{
		TargetDate: "2024-07-15",
		YearsBack:  intPtr(1),
	}))
	var acqErr *domain.AcquisitionError
	require.ErrorAs(t, err, &acqErr)
	assert.Zero(t, acqErr.Year)
}

func TestAnalyze_InvalidRequests(t *testing.T) {
	fx := newFixture(nil, 0, nil)
	a := fx.analyzer()

	tests := []struct {
		name string
		req  domain.AnalysisRequest
		want error
	}{
		{"bad date", atPoint(domain.AnalysisRequest{TargetDate: "15/07/2024"}), domain.ErrInvalidDate},
		{"missing date", atPoint(domain.AnalysisRequest{}), domain.ErrInvalidRequest},
		{"missing coordinates", domain.AnalysisRequest{TargetDate: "2024-07-15"}, domain.ErrInvalidRequest},
		{"missing longitude", domain.AnalysisRequest{TargetDate: "2024-07-15", Lat: floatPtr(10)}, domain.ErrInvalidRequest},
		{"latitude out of range", domain.AnalysisRequest{TargetDate: "2024-07-15", Lat: floatPtr(91), Lon: floatPtr(0)}, domain.ErrInvalidRequest},
		{"hour out of range", atPoint(domain.AnalysisRequest{TargetDate: "2024-07-15", TargetHour: intPtr(24)}), domain.ErrInvalidRequest},
		{"zero years", atPoint(domain.AnalysisRequest{TargetDate: "2024-07-15", YearsBack: intPtr(0)}), domain.ErrInvalidRequest},
		{"unknown hour reference", atPoint(domain.AnalysisRequest{TargetDate: "2024-07-15", HourReference: "solar"}), domain.ErrInvalidRequest},
		{"local without timezones", atPoint(domain.AnalysisRequest{TargetDate: "2024-07-15", HourReference: "local"}), domain.ErrInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Analyze(context.Background(), tt.req)
			require.ErrorIs(t, err, tt.want)
			assert.Empty(t, fx.catalog.windows)
		})
	}
}

func TestValidate_MessageUsesJSONNames(t *testing.T) {
	err := analysis.Validate(domain.AnalysisRequest{TargetDate: "2024-07-15", Lat: floatPtr(0), Lon: floatPtr(200)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lon must satisfy lte=180")

	err = analysis.Validate(domain.AnalysisRequest{TargetDate: "2024-07-15"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lat is required")
	assert.Contains(t, err.Error(), "lon is required")
}

func TestValidate_ZeroCoordinatesAreValid(t *testing.T) {
	require.NoError(t, analysis.Validate(domain.AnalysisRequest{TargetDate: "2024-07-15", Lat: floatPtr(0), Lon: floatPtr(0)}))
}

type fixedZone struct{ loc *time.Location }

func (z fixedZone) Location(_, _ float64) (*time.Location, error) { return z.loc, nil }

func TestAnalyze_LocalHourReference(t *testing.T) {
	values := comfortableValues()
	fx := newFixture([]int{2023}, 1, values)
	// Only hour 03 UTC carries a distinct temperature.
	gf := fx.files[granuleURL(time.Date(2023, 7, 13, 0, 0, 0, 0, time.UTC))].(*gridFile)
	gf.times = gf.times[3:4]
	gf.values = map[string]float64{"T2M": 303.15, "QV2M": values["QV2M"], "TQL": 0, "TQV": 25}

	tz := fixedZone{loc: time.FixedZone("UTC-9", -9*3600)}
	result, err := fx.analyzer(analysis.WithTimezones(tz)).Analyze(context.Background(), domain.AnalysisRequest{
		TargetDate:    "2024-07-13",
		Lat:           floatPtr(0.1),
		Lon:           floatPtr(0.1),
		TargetHour:    intPtr(18), // 18:00 at UTC-9 is 03:00 UTC
		YearsBack:     intPtr(1),
		WindowHours:   intPtr(0),
		HourReference: domain.HourReferenceLocal,
	})
	require.NoError(t, err)
	assert.InDelta(t, 30.0, float64(result.MeanT2M), 1e-9)
}

func TestRespond(t *testing.T) {
	res := domain.AnalysisResult{FilesUsed: 3, MeanT2M: 21}
	ok := analysis.Respond(res, nil)
	if diff := cmp.Diff(domain.Response{AnalysisResult: &res}, ok); diff != "" {
		t.Errorf("Respond mismatch (-want +got):\n%s", diff)
	}

	failed := analysis.Respond(domain.AnalysisResult{}, &domain.DatasetError{Path: "a.nc4", Reason: "lat/lon grid differs"})
	assert.Nil(t, failed.AnalysisResult)
	assert.Equal(t, "dataset a.nc4: lat/lon grid differs", failed.Error)
}
