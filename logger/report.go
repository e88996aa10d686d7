package logger

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

type flowStat struct {
	records int64
	bytes   int64
}

var (
	errorsReader     int64
	errorsDispatcher int64
	warnsReader      int64
	warnsDispatcher  int64
	feedsFetched     int64
	offersParsed     int64
	batchesSent      int64
	flows            sync.Map // map[string]*flowStat
)

func recordWarn(component string) {
	if strings.Contains(component, "reader") || strings.Contains(component, "feed") {
		atomic.AddInt64(&warnsReader, 1)
	} else if strings.Contains(component, "dispatcher") || strings.Contains(component, "catalog") {
		atomic.AddInt64(&warnsDispatcher, 1)
	}
}

func recordError(component string) {
	if strings.Contains(component, "reader") || strings.Contains(component, "feed") {
		atomic.AddInt64(&errorsReader, 1)
	} else if strings.Contains(component, "dispatcher") || strings.Contains(component, "catalog") {
		atomic.AddInt64(&errorsDispatcher, 1)
	}
}

func IncrementFeedFetched(size int) {
	atomic.AddInt64(&feedsFetched, 1)
	recordFlow("feed_fetch", size)
}

func IncrementOffersParsed(count int) {
	atomic.AddInt64(&offersParsed, int64(count))
	recordFlow("offer_parse", count)
}

func IncrementBatchSent(size int) {
	atomic.AddInt64(&batchesSent, 1)
	recordFlow("catalog_dispatch", size)
}

func RecordFlow(name string, size int) {
	recordFlow(name, size)
}

func recordFlow(name string, size int) {
	v, _ := flows.LoadOrStore(name, &flowStat{})
	fs := v.(*flowStat)
	atomic.AddInt64(&fs.records, 1)
	atomic.AddInt64(&fs.bytes, int64(size))
}

// StartReport begins periodic logging of system and pipeline statistics.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-ticker.C:
				logReport(ctx, log)
			}
		}
	}()
}

func logReport(ctx context.Context, log *Log) {
	cpuPercent, _ := cpu.Percent(0, false)
	memStats, _ := mem.VirtualMemory()
	diskStats, _ := disk.Usage("/")
	flowData := map[string]map[string]int64{}
	flows.Range(func(k, v any) bool {
		name := k.(string)
		fs := v.(*flowStat)
		flowData[name] = map[string]int64{
			"records": atomic.LoadInt64(&fs.records),
			"bytes":   atomic.LoadInt64(&fs.bytes),
		}
		return true
	})

	cpuPct := 0.0
	if len(cpuPercent) > 0 {
		cpuPct = cpuPercent[0]
	}

	fields := Fields{
		"errors_reader":     atomic.LoadInt64(&errorsReader),
		"errors_dispatcher": atomic.LoadInt64(&errorsDispatcher),
		"warns_reader":      atomic.LoadInt64(&warnsReader),
		"warns_dispatcher":  atomic.LoadInt64(&warnsDispatcher),
		"feeds_fetched":     atomic.LoadInt64(&feedsFetched),
		"offers_parsed":     atomic.LoadInt64(&offersParsed),
		"batches_sent":      atomic.LoadInt64(&batchesSent),
		"goroutines":        runtime.NumGoroutine(),
		"cpu_percent":       cpuPct,
		"memory_mb":         int64(memStats.Used) / 1024 / 1024,
		"disk_mb":           int64(diskStats.Used) / 1024 / 1024,
		"flows":             flowData,
	}

	log.WithComponent("report").WithFields(fields).Info("runtime report")

	var data []cwtypes.MetricDatum
	data = append(data,
		cwtypes.MetricDatum{MetricName: aws.String("CPUPercent"), Unit: cwtypes.StandardUnitPercent, Value: aws.Float64(cpuPct)},
		cwtypes.MetricDatum{MetricName: aws.String("MemoryMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(memStats.Used) / 1024 / 1024)},
		cwtypes.MetricDatum{MetricName: aws.String("ErrorsReader"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["errors_reader"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("ErrorsDispatcher"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["errors_dispatcher"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("WarnsReader"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["warns_reader"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("WarnsDispatcher"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["warns_dispatcher"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("FeedsFetched"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["feeds_fetched"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("OffersParsed"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["offers_parsed"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("BatchesSent"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["batches_sent"].(int64)))},
	)

	for name, stats := range flowData {
		data = append(data,
			cwtypes.MetricDatum{
				MetricName: aws.String("FlowRecords"),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Flow"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["records"])),
			},
			cwtypes.MetricDatum{
				MetricName: aws.String("FlowBytes"),
				Unit:       cwtypes.StandardUnitBytes,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Flow"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["bytes"])),
			},
		)
	}

	publishMetrics(ctx, data)
}
