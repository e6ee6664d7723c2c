package collector

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/aws/aws-sdk-go-v2/service/ec2"

	"github.com/tailorcast/monitoring-agents-it/agent/internal/config"
	"github.com/tailorcast/monitoring-agents-it/agent/internal/threshold"
	"github.com/tailorcast/monitoring-agents-it/pkg/types"
)

const (
	cwPeriodSeconds = 300
	cwLookback      = 10 * time.Minute
)

// EC2API is the subset of the EC2 client used here.
type EC2API interface {
	DescribeInstances(ctx context.Context, in *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
}

// CloudWatchAPI is the subset of the CloudWatch client used here.
type CloudWatchAPI interface {
	GetMetricStatistics(ctx context.Context, in *cloudwatch.GetMetricStatisticsInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.GetMetricStatisticsOutput, error)
}

// AWSClients returns EC2 and CloudWatch clients for a region.
type AWSClients func(ctx context.Context, region string) (EC2API, CloudWatchAPI, error)

// DefaultAWSClients loads the default credential chain once per region.
func DefaultAWSClients() AWSClients {
	type pair struct {
		ec2 EC2API
		cw  CloudWatchAPI
	}
	var (
		mu    sync.Mutex
		cache = map[string]pair{}
	)
	return func(ctx context.Context, region string) (EC2API, CloudWatchAPI, error) {
		mu.Lock()
		defer mu.Unlock()
		if p, ok := cache[region]; ok {
			return p.ec2, p.cw, nil
		}
		cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
		if err != nil {
			return nil, nil, fmt.Errorf("load aws config: %w", err)
		}
		p := pair{ec2: ec2.NewFromConfig(cfg), cw: cloudwatch.NewFromConfig(cfg)}
		cache[region] = p
		return p.ec2, p.cw, nil
	}
}

// EC2 checks instance state and CloudWatch utilisation.
type EC2 struct {
	instances []config.EC2Instance
	set       threshold.Set
	clients   AWSClients
	now       func() time.Time
	logger    *slog.Logger
}

// NewEC2 returns the ec2 collector.
func NewEC2(instances []config.EC2Instance, set threshold.Set, clients AWSClients, logger *slog.Logger) *EC2 {
	return &EC2{instances: instances, set: set, clients: clients, now: time.Now, logger: logger}
}

// Name implements Collector.
func (e *EC2) Name() string { return NameEC2 }

// Collect implements Collector.
func (e *EC2) Collect(ctx context.Context) ([]types.Observation, error) {
	e.logger.Info("collector: checking ec2 instances", "count", len(e.instances))
	return fanOut(ctx, e.instances, e.check), nil
}

func (e *EC2) check(ctx context.Context, inst config.EC2Instance) types.Observation {
	base := types.Metrics{
		{Key: "instance_id", Value: inst.InstanceID},
		{Key: "region", Value: inst.Region},
	}
	fail := func(err error) types.Observation {
		e.logger.Warn("collector: ec2 check failed", "target", inst.Name, "err", err)
		return types.Failed(NameEC2, inst.Name, types.SeverityRed, base.Clone(),
			"Collection failed: "+err.Error(), err)
	}

	ec2c, cw, err := e.clients(ctx, inst.Region)
	if err != nil {
		return fail(err)
	}
	out, err := ec2c.DescribeInstances(ctx, &ec2.DescribeInstancesInput{InstanceIds: []string{inst.InstanceID}})
	if err != nil {
		return fail(err)
	}
	if len(out.Reservations) == 0 || len(out.Reservations[0].Instances) == 0 {
		return fail(fmt.Errorf("instance %s not found", inst.InstanceID))
	}
	instance := out.Reservations[0].Instances[0]
	state := "unknown"
	if instance.State != nil {
		state = string(instance.State.Name)
	}
	metrics := append(base.Clone(), types.Metric{Key: "state", Value: state})
	if state != "running" {
		return types.NewObservation(NameEC2, inst.Name, types.SeverityRed, metrics, "Instance "+state)
	}

	sev := types.SeverityYellow
	msg := "Running, CPU data unavailable"
	cpu, ok := e.average(ctx, cw, "AWS/EC2", "CPUUtilization", []cwtypes.Dimension{dim("InstanceId", inst.InstanceID)})
	if ok {
		sev = threshold.Evaluate(e.set, threshold.FamilyCPU, cpu, threshold.HigherIsWorse)
		msg = fmt.Sprintf("Running, CPU: %.1f%%", cpu)
		metrics = append(metrics, types.Metric{Key: "cpu_usage_pct", Value: round1(cpu)})
	}
	metrics = append(metrics, types.Metric{Key: "instance_type", Value: string(instance.InstanceType)})

	if inst.MonitorDisk {
		dims := []cwtypes.Dimension{dim("InstanceId", inst.InstanceID), dim("path", inst.DiskPath)}
		if inst.DiskDevice != "" {
			dims = append(dims, dim("device", inst.DiskDevice))
		}
		if inst.DiskFSType != "" {
			dims = append(dims, dim("fstype", inst.DiskFSType))
		}
		if used, ok := e.average(ctx, cw, inst.DiskNamespace, "disk_used_percent", dims); ok {
			free := 100 - used
			sev = types.Worst(sev, threshold.Evaluate(e.set, threshold.FamilyDiskFree, free, threshold.LowerIsWorse))
			metrics = append(metrics, types.Metric{Key: "disk_free_pct", Value: round1(free)})
			msg += fmt.Sprintf(", Disk free: %.1f%%", free)
		} else {
			msg += ", disk data unavailable"
		}
	}
	return types.NewObservation(NameEC2, inst.Name, sev, metrics, msg)
}

// average returns the newest Average datapoint of a CloudWatch metric.
func (e *EC2) average(ctx context.Context, cw CloudWatchAPI, namespace, metric string, dims []cwtypes.Dimension) (float64, bool) {
	end := e.now()
	out, err := cw.GetMetricStatistics(ctx, &cloudwatch.GetMetricStatisticsInput{
		Namespace:  aws.String(namespace),
		MetricName: aws.String(metric),
		Dimensions: dims,
		StartTime:  aws.Time(end.Add(-cwLookback)),
		EndTime:    aws.Time(end),
		Period:     aws.Int32(cwPeriodSeconds),
		Statistics: []cwtypes.Statistic{cwtypes.StatisticAverage},
	})
	if err != nil {
		e.logger.Warn("collector: cloudwatch query failed", "namespace", namespace, "metric", metric, "err", err)
		return 0, false
	}
	points := out.Datapoints
	if len(points) == 0 {
		return 0, false
	}
	sort.Slice(points, func(i, j int) bool {
		return aws.ToTime(points[i].Timestamp).After(aws.ToTime(points[j].Timestamp))
	})
	if points[0].Average == nil {
		return 0, false
	}
	return *points[0].Average, true
}

func dim(name, value string) cwtypes.Dimension {
	return cwtypes.Dimension{Name: aws.String(name), Value: aws.String(value)}
}
