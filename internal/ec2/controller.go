package ec2

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/aws/aws-sdk-go/service/ec2/ec2iface"
	"go.uber.org/zap"
)

// Controller keeps the proving instance running while the prover has
// outstanding assignments. Busy and Idle only record the desired state;
// Run applies it, so they are safe to call from the capacity guard.
type Controller struct {
	client     ec2iface.EC2API
	instanceId string
	logger     *zap.Logger

	mu      sync.Mutex
	running bool

	desired chan bool
	// idleCheck is how often Run asks for expired assignments to be reclaimed
	// while the instance is running.
	idleCheck time.Duration
}

const defaultIdleCheck = 30 * time.Second

func NewController(region string, instanceId string, logger *zap.Logger) (*Controller, error) {
	sess, err := session.NewSession(&aws.Config{Region: &region})
	if err != nil {
		return nil, fmt.Errorf("failed to create ec2 session: %w", err)
	}
	c := newController(ec2.New(sess), instanceId, logger)
	if err := c.updateState(); err != nil {
		return nil, fmt.Errorf("failed to update ec2 controller: %w", err)
	}
	return c, nil
}

func newController(client ec2iface.EC2API, instanceId string, logger *zap.Logger) *Controller {
	return &Controller{
		client:     client,
		instanceId: instanceId,
		logger:     logger,
		desired:    make(chan bool, 1),
		idleCheck:  defaultIdleCheck,
	}
}

func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *Controller) Busy() { c.want(true) }

func (c *Controller) Idle() { c.want(false) }

// want replaces any pending desired state with running.
func (c *Controller) want(running bool) {
	for {
		select {
		case c.desired <- running:
			return
		default:
		}
		select {
		case <-c.desired:
		default:
		}
	}
}

// Run applies desired state changes until ctx is done. While the instance is
// running it calls reclaim every idleCheck, so assignments that expire with no
// further traffic still lead to Idle.
func (c *Controller) Run(ctx context.Context, reclaim func()) {
	ticker := time.NewTicker(c.idleCheck)
	defer ticker.Stop()
	for {
		select {
		case running := <-c.desired:
			if running {
				if err := c.StartIfNotRunning(); err != nil {
					c.logger.Sugar().Errorw("Failed to start prover instance", "instanceId", c.instanceId, "error", err)
				}
			} else {
				c.StopIfRunning()
			}
		case <-ticker.C:
			if reclaim != nil && c.Running() {
				reclaim()
			}
		case <-ctx.Done():
			return
		}
	}
}

func (c *Controller) updateState() error {
	instance, err := c.findInstance()
	if err != nil {
		return err
	}
	if instance == nil {
		return fmt.Errorf("instance %s not found", c.instanceId)
	}
	state := aws.StringValue(instance.State.Name)
	c.mu.Lock()
	c.running = state == ec2.InstanceStateNameRunning || state == ec2.InstanceStateNamePending
	c.mu.Unlock()
	return nil
}

func (c *Controller) findInstance() (*ec2.Instance, error) {
	output, err := c.client.DescribeInstances(&ec2.DescribeInstancesInput{InstanceIds: c.instanceIds()})
	if err != nil || len(output.Reservations) == 0 || len(output.Reservations[0].Instances) == 0 {
		return nil, err
	}
	return output.Reservations[0].Instances[0], nil
}

func (c *Controller) StartIfNotRunning() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil
	}
	if _, err := c.client.StartInstances(&ec2.StartInstancesInput{InstanceIds: c.instanceIds()}); err != nil {
		return fmt.Errorf("failed to start ec2 instance %s: %w", c.instanceId, err)
	}
	c.logger.Sugar().Infow("Started prover instance", "instanceId", c.instanceId)
	c.running = true
	return nil
}

func (c *Controller) StopIfRunning() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return
	}
	if _, err := c.client.StopInstances(&ec2.StopInstancesInput{InstanceIds: c.instanceIds()}); err != nil {
		c.logger.Sugar().Errorw("Failed to stop prover instance", "instanceId", c.instanceId, "error", err)
		return
	}
	c.logger.Sugar().Infow("Stopped prover instance", "instanceId", c.instanceId)
	c.running = false
}

func (c *Controller) instanceIds() []*string { return []*string{&c.instanceId} }
