// Package dapr exposes the crawl supervisor to a Dapr sidecar: service
// invocation methods to start, stop and inspect crawls, and Jobs API
// scheduling of one-shot crawls.
package dapr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	daprc "github.com/dapr/go-sdk/client"
	"github.com/dapr/go-sdk/service/common"
	daprs "github.com/dapr/go-sdk/service/grpc"
	"github.com/rs/zerolog/log"
	"google.golang.org/protobuf/types/known/anypb"

	"github.com/researchaccelerator-hub/housing-map-crawler/model"
	"github.com/researchaccelerator-hub/housing-map-crawler/supervisor"
)

// Controller starts and stops crawl runs.
type Controller interface {
	Start(city model.City) (supervisor.Status, error)
	Stop() error
	Status() supervisor.Status
}

// jobClient is the subset of the Dapr client used for scheduling.
type jobClient interface {
	ScheduleJobAlpha1(ctx context.Context, job *daprc.Job) error
	GetJobAlpha1(ctx context.Context, name string) (*daprc.Job, error)
}

// JobData is the payload of a scheduled crawl.
type JobData struct {
	City    string `json:"city"`
	DueTime string `json:"dueTime,omitempty"`
}

// Service holds the invocation and job handlers.
type Service struct {
	ctrl   Controller
	jobs   jobClient
	cities []model.City
}

func NewService(ctrl Controller, jobs jobClient, cities []model.City) *Service {
	return &Service{ctrl: ctrl, jobs: jobs, cities: cities}
}

// JobName is the Dapr job that crawls city.
func JobName(city model.City) string {
	return "crawl-" + city.Code
}

// Register adds every handler to srv, including one job handler per city.
func (s *Service) Register(srv common.Service) error {
	handlers := map[string]common.ServiceInvocationHandler{
		"startCrawl":    s.startCrawl,
		"stopCrawl":     s.stopCrawl,
		"crawlStatus":   s.crawlStatus,
		"scheduleCrawl": s.scheduleCrawl,
		"getJob":        s.getJob,
	}
	for name, h := range handlers {
		if err := srv.AddServiceInvocationHandler(name, h); err != nil {
			return fmt.Errorf("error adding invocation handler %s: %w", name, err)
		}
	}
	for _, city := range s.cities {
		if err := srv.AddJobEventHandler(JobName(city), s.handleJob); err != nil {
			return fmt.Errorf("failed to register job event handler for %s: %w", city.Name, err)
		}
		log.Debug().Str("job", JobName(city)).Msg("Registered job handler")
	}
	return nil
}

// StartDaprMode serves the handlers on port until ctx is cancelled.
func StartDaprMode(ctx context.Context, ctrl Controller, cities []model.City, port int) error {
	log.Info().Int("port", port).Msg("Listening for Dapr requests")

	daprClient, err := daprc.NewClient()
	if err != nil {
		return fmt.Errorf("failed to create dapr client: %w", err)
	}
	defer daprClient.Close()

	server, err := daprs.NewService(fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("failed to create dapr service: %w", err)
	}
	if err := NewService(ctrl, daprClient, cities).Register(server); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return server.GracefulStop()
	}
}

func (s *Service) lookupCity(nameOrCode string) (model.City, error) {
	nameOrCode = strings.TrimSpace(nameOrCode)
	for _, city := range s.cities {
		if city.Name == nameOrCode || city.Code == nameOrCode {
			return city, nil
		}
	}
	return model.City{}, fmt.Errorf("unknown city %q", nameOrCode)
}

func jsonContent(v any) (*common.Content, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return &common.Content{Data: data, ContentType: "application/json"}, nil
}

func decodeJobData(in *common.InvocationEvent) (JobData, error) {
	var data JobData
	if in == nil {
		return data, errors.New("no invocation parameter")
	}
	if err := json.Unmarshal(in.Data, &data); err != nil {
		return data, fmt.Errorf("failed to unmarshal job data: %w", err)
	}
	return data, nil
}

func (s *Service) startCrawl(ctx context.Context, in *common.InvocationEvent) (*common.Content, error) {
	data, err := decodeJobData(in)
	if err != nil {
		return nil, err
	}
	city, err := s.lookupCity(data.City)
	if err != nil {
		return nil, err
	}
	st, err := s.ctrl.Start(city)
	if err != nil {
		return nil, err
	}
	return jsonContent(st)
}

func (s *Service) stopCrawl(ctx context.Context, in *common.InvocationEvent) (*common.Content, error) {
	if err := s.ctrl.Stop(); err != nil {
		return nil, err
	}
	return jsonContent(s.ctrl.Status())
}

func (s *Service) crawlStatus(ctx context.Context, in *common.InvocationEvent) (*common.Content, error) {
	return jsonContent(s.ctrl.Status())
}

// scheduleCrawl schedules a one-shot crawl of a city through the Jobs API.
func (s *Service) scheduleCrawl(ctx context.Context, in *common.InvocationEvent) (*common.Content, error) {
	data, err := decodeJobData(in)
	if err != nil {
		return nil, err
	}
	city, err := s.lookupCity(data.City)
	if err != nil {
		return nil, err
	}
	data.City = city.Code

	content, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	job := daprc.Job{
		Name:    JobName(city),
		DueTime: data.DueTime,
		Data:    &anypb.Any{Value: content},
	}
	if err := s.jobs.ScheduleJobAlpha1(ctx, &job); err != nil {
		log.Error().Err(err).Str("job", job.Name).Msg("Failed to schedule job")
		return nil, err
	}
	log.Info().Str("job", job.Name).Str("due_time", data.DueTime).Msg("Crawl scheduled")
	return jsonContent(data)
}

// getJob returns the payload of a scheduled job by name.
func (s *Service) getJob(ctx context.Context, in *common.InvocationEvent) (*common.Content, error) {
	if in == nil {
		return nil, errors.New("no invocation parameter")
	}
	job, err := s.jobs.GetJobAlpha1(ctx, string(in.Data))
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	out := &common.Content{ContentType: "application/json"}
	if job != nil && job.Data != nil {
		out.Data = job.Data.Value
	}
	return out, nil
}

// handleJob starts the crawl a triggered job names. A crawl already running
// is not an error; the job is simply skipped.
func (s *Service) handleJob(ctx context.Context, job *common.JobEvent) error {
	var data JobData
	if err := json.Unmarshal(job.Data, &data); err != nil {
		return fmt.Errorf("failed to unmarshal job payload: %w", err)
	}
	city, err := s.lookupCity(data.City)
	if err != nil {
		return err
	}

	st, err := s.ctrl.Start(city)
	if errors.Is(err, supervisor.ErrAlreadyRunning) {
		log.Warn().Str("city", city.Code).Str("running", st.CityCode).Msg("Skipping scheduled crawl, another crawl is running")
		return nil
	}
	if err != nil {
		return err
	}
	log.Info().Str("city", city.Code).Interface("run_id", st.RunID).Msg("Scheduled crawl started")
	return nil
}
