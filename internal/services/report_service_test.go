package services_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schoolfin/internal/amqp"
	"schoolfin/internal/cache"
	"schoolfin/internal/core"
	"schoolfin/internal/report"
	"schoolfin/internal/services"
	"schoolfin/internal/services/mocks"
)

var january = core.NewDateRange(core.NewDate(2024, 1, 1), core.NewDate(2024, 1, 31))

func januaryPayments() core.RecordSet {
	return core.RecordSet{Payments: []core.Payment{
		{ID: "p1", StudentID: "s1", Method: "card", Amount: "100.00", Date: "2024-01-05", Status: core.StatusCompleted},
		{ID: "p2", StudentID: "s2", Method: "cash", Amount: "50.00", Date: "2024-01-20", Status: core.StatusCompleted},
		{ID: "p3", StudentID: "s2", Method: "cash", Amount: "70.00", Date: "2024-01-21", Status: core.StatusPending},
	}}
}

func januaryExpenses() core.RecordSet {
	return core.RecordSet{Expenses: []core.Expense{
		{ID: "e1", Category: "Fuel", Amount: "30.00", Date: "2024-01-10"},
	}}
}

func newReportCache() *cache.LRUCache[report.Result] {
	return cache.NewLRUCache[report.Result](16, time.Minute)
}

func TestParseQuery(t *testing.T) {
	today := core.NewDate(2024, 3, 31)

	tests := []struct {
		name        string
		kind        string
		from, to    string
		granularity string
		want        report.Query
		wantErr     error
	}{
		{
			name: "defaults to last thirty days",
			kind: "cash-flow",
			want: report.Query{
				Kind:        report.KindCashFlow,
				Range:       core.NewDateRange(core.NewDate(2024, 3, 2), today),
				Granularity: report.Monthly,
			},
		},
		{
			name: "explicit bounds", kind: "profit-loss", from: "2024-01-01", to: "2024-01-31", granularity: "day",
			want: report.Query{Kind: report.KindProfitLoss, Range: january, Granularity: report.Daily},
		},
		{name: "unknown report", kind: "ledger", wantErr: report.ErrUnknownReport},
		{name: "bad date", kind: "balance", from: "yesterday", wantErr: core.ErrInvalidDate},
		{name: "inverted range", kind: "balance", from: "2024-02-01", to: "2024-01-01", wantErr: core.ErrInvalidRange},
		{name: "bad granularity", kind: "cash-flow", granularity: "week", wantErr: services.ErrInvalidQuery},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := services.ParseQuery(tt.kind, tt.from, tt.to, tt.granularity, today)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				assert.ErrorIs(t, err, services.ErrInvalidQuery)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReportService_Report_LoadsNeededKindsAndCaches(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)

	store.EXPECT().LoadRecords(gomock.Any(), "school-1", core.KindPayment).Return(januaryPayments(), nil).Times(1)
	store.EXPECT().LoadRecords(gomock.Any(), "school-1", core.KindExpense).Return(januaryExpenses(), nil).Times(1)

	svc := services.NewReportService(store, newReportCache(), nil, "schoolfin")
	q := report.Query{Kind: report.KindProfitLoss, Range: january}

	res, cached, err := svc.Report(context.Background(), "school-1", q)
	require.NoError(t, err)
	assert.False(t, cached)

	pl, ok := res.(report.ProfitAndLoss)
	require.True(t, ok)
	assert.Equal(t, "150.00", pl.Revenue.Fixed())
	assert.Equal(t, "30.00", pl.Expenses.Fixed())
	assert.Equal(t, "120.00", pl.NetProfit.Fixed())

	again, cached, err := svc.Report(context.Background(), "school-1", q)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, res, again)
}

func TestReportService_SaveRecordsDropsCachedReports(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	svc := services.NewReportService(store, newReportCache(), nil, "schoolfin")
	q := report.Query{Kind: report.KindExpensesByCategory, Range: january}

	gomock.InOrder(
		store.EXPECT().LoadRecords(gomock.Any(), "school-1", core.KindExpense).Return(januaryExpenses(), nil),
		store.EXPECT().UpsertRecords(gomock.Any(), "school-1", gomock.Any()).Return(1, nil),
		store.EXPECT().LoadRecords(gomock.Any(), "school-1", core.KindExpense).Return(januaryExpenses().Merge(core.RecordSet{
			Expenses: []core.Expense{{ID: "e2", Category: "Insurance", Amount: "200", Date: "2024-01-15"}},
		}), nil),
	)

	_, _, err := svc.Report(context.Background(), "school-1", q)
	require.NoError(t, err)

	n, err := svc.SaveRecords(context.Background(), "school-1", core.RecordSet{
		Expenses: []core.Expense{{ID: "e2", Category: "Insurance", Amount: "200", Date: "2024-01-15"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	res, cached, err := svc.Report(context.Background(), "school-1", q)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, "230.00", res.(report.Breakdown).GrandTotal.Fixed())
}

func TestReportService_SaveRecordsRejectsInvalidSet(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	svc := services.NewReportService(store, nil, nil, "schoolfin")

	_, err := svc.SaveRecords(context.Background(), "school-1", core.RecordSet{
		Payments: []core.Payment{{ID: "p1", Amount: "10", Date: "2024-01-01", Status: core.StatusCompleted}},
	})
	assert.ErrorIs(t, err, core.ErrEmptyStudentID)

	_, err = svc.SaveRecords(context.Background(), " ", core.RecordSet{})
	assert.ErrorIs(t, err, core.ErrMissingSchool)
}

func TestReportService_LoadErrorPropagates(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	boom := errors.New("database is locked")

	store.EXPECT().LoadRecords(gomock.Any(), "school-1", gomock.Any()).Return(core.RecordSet{}, boom).AnyTimes()

	svc := services.NewReportService(store, newReportCache(), nil, "schoolfin")
	_, _, err := svc.Report(context.Background(), "school-1", report.Query{Kind: report.KindBalance, Range: january})
	assert.ErrorIs(t, err, boom)
}

func TestReportService_InvalidRangeSkipsStore(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := services.NewReportService(mocks.NewMockStore(ctrl), nil, nil, "schoolfin")

	bad := core.NewDateRange(core.NewDate(2024, 2, 1), core.NewDate(2024, 1, 1))
	_, _, err := svc.Report(context.Background(), "school-1", report.Query{Kind: report.KindBalance, Range: bad})
	assert.ErrorIs(t, err, core.ErrInvalidRange)
}

func TestReportService_ExportCSV(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	store.EXPECT().LoadRecords(gomock.Any(), "school-1", core.KindPayment).Return(januaryPayments(), nil)
	store.EXPECT().LoadRecords(gomock.Any(), "school-1", core.KindExpense).Return(januaryExpenses(), nil)

	svc := services.NewReportService(store, nil, nil, "Drive Academy")
	name, body, err := svc.ExportCSV(context.Background(), "school-1", report.Query{Kind: report.KindProfitLoss, Range: january})
	require.NoError(t, err)

	assert.Equal(t, "drive-academy_profit-loss.csv", name)
	assert.True(t, strings.HasPrefix(body, "section,item,amount\n"), body)
	assert.Contains(t, body, "result,Net profit,120.00\n")
}

func TestReportService_RequestSheetsExport(t *testing.T) {
	q := report.Query{Kind: report.KindCashFlow, Range: january, Granularity: report.Monthly}

	t.Run("disabled without publisher", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		svc := services.NewReportService(mocks.NewMockStore(ctrl), nil, nil, "schoolfin")
		_, err := svc.RequestSheetsExport(context.Background(), "school-1", q)
		assert.ErrorIs(t, err, services.ErrExportUnavailable)
	})

	t.Run("publishes job", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		pub := mocks.NewMockExportPublisher(ctrl)
		var sent *amqp.ExportRequest
		pub.EXPECT().PublishExportRequest(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, req *amqp.ExportRequest) error {
				sent = req
				return nil
			})

		svc := services.NewReportService(mocks.NewMockStore(ctrl), nil, pub, "schoolfin")
		req, err := svc.RequestSheetsExport(context.Background(), "school-1", q)
		require.NoError(t, err)
		require.Same(t, req, sent)

		assert.NotEmpty(t, req.JobID)
		assert.Equal(t, "school-1", req.SchoolID)
		assert.Equal(t, "cash-flow", req.Report)
		assert.Equal(t, "2024-01-01", req.From)
		assert.Equal(t, "2024-01-31", req.To)
		assert.Equal(t, "month", req.Granularity)
		assert.NoError(t, req.Validate())
	})

	t.Run("publish failure", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		pub := mocks.NewMockExportPublisher(ctrl)
		pub.EXPECT().PublishExportRequest(gomock.Any(), gomock.Any()).Return(amqp.ErrCircuitOpen)

		svc := services.NewReportService(mocks.NewMockStore(ctrl), nil, pub, "schoolfin")
		_, err := svc.RequestSheetsExport(context.Background(), "school-1", q)
		assert.ErrorIs(t, err, amqp.ErrCircuitOpen)
	})
}
