package p4runtime

import (
	"bytes"
	"context"

	p4configv1 "github.com/p4lang/p4runtime/go/p4/config/v1"
	p4v1 "github.com/p4lang/p4runtime/go/p4/v1"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/prototext"
	"google.golang.org/protobuf/proto"

	"github.com/newtron-network/p4rt/pkg/grpcclient"
	"github.com/newtron-network/p4rt/pkg/pipeconf"
	"github.com/newtron-network/p4rt/pkg/util"
)

const (
	opSetPipelineConfig = "SET-pipeline-config"
	opGetPipelineConfig = "GET-pipeline-config"
)

var emptySetResponse = &p4v1.SetForwardingPipelineConfigResponse{}

// SetPipelineConfig pushes the pipeline described by pc, with deviceData as
// the target-specific binary, using VERIFY_AND_COMMIT. The future resolves
// to false when the session is not open, when pc cannot be resolved, or
// when the device rejects the request; the details are logged. It fails
// only on structural errors such as shutdown or lock timeout.
func (c *Client) SetPipelineConfig(pc pipeconf.Pipeconf, deviceData []byte) *grpcclient.Future[bool] {
	log := util.WithOperation(c.DeviceID(), opSetPipelineConfig)
	if !c.IsSessionOpen() {
		log.Warnf("Dropping set pipeline config request for %s, session is CLOSED", c.DeviceID())
		return grpcclient.Completed(false)
	}

	log.Infof("Setting pipeline config for %s to %s...", c.DeviceID(), pc.ID())

	cfg, err := c.buildForwardingPipelineConfig(pc, deviceData)
	if err != nil {
		return grpcclient.Completed(false)
	}

	req := &p4v1.SetForwardingPipelineConfigRequest{
		DeviceId:   c.p4DeviceID,
		ElectionId: c.LastUsedElectionID(),
		Action:     p4v1.SetForwardingPipelineConfigRequest_VERIFY_AND_COMMIT,
		Config:     cfg,
	}

	return grpcclient.SubmitInScope(c.Client, opSetPipelineConfig, func(ctx context.Context) (bool, error) {
		ctx, cancel := context.WithTimeout(ctx, c.timeouts.Long)
		defer cancel()

		resp, err := c.stub.SetForwardingPipelineConfig(ctx, req)
		if err != nil {
			c.HandleRPCError(err, opSetPipelineConfig)
			return false, nil
		}
		if !proto.Equal(resp, emptySetResponse) {
			log.Warnf("Received invalid SetForwardingPipelineConfigResponse from %s [%s]",
				c.DeviceID(), prototext.MarshalOptions{}.Format(resp))
		}
		return true, nil
	})
}

// IsPipelineConfigSet reports whether the device runs the pipeline
// described by pc and expectedDeviceData. Only the cookie is fetched; when
// the device returns no cookie, the P4Info and device config it returned
// are compared instead.
func (c *Client) IsPipelineConfigSet(pc pipeconf.Pipeconf, expectedDeviceData []byte) *grpcclient.Future[bool] {
	return grpcclient.Then(c.getPipelineCookie(), func(fetched *p4v1.ForwardingPipelineConfig) bool {
		return c.comparePipelineConfig(pc, expectedDeviceData, fetched)
	})
}

// IsAnyPipelineConfigSet reports whether the device has any pipeline config.
func (c *Client) IsAnyPipelineConfigSet() *grpcclient.Future[bool] {
	return grpcclient.Then(c.getPipelineCookie(), func(fetched *p4v1.ForwardingPipelineConfig) bool {
		return fetched != nil
	})
}

func (c *Client) buildForwardingPipelineConfig(pc pipeconf.Pipeconf, deviceData []byte) (*p4v1.ForwardingPipelineConfig, error) {
	info, err := c.resolver.P4Info(pc)
	if err != nil {
		return nil, err
	}
	return &p4v1.ForwardingPipelineConfig{
		P4Info:         info,
		P4DeviceConfig: EncodeDeviceConfig(deviceData),
		Cookie:         &p4v1.ForwardingPipelineConfig_Cookie{Cookie: pc.Fingerprint()},
	}, nil
}

func (c *Client) comparePipelineConfig(pc pipeconf.Pipeconf, expectedDeviceData []byte, fetched *p4v1.ForwardingPipelineConfig) bool {
	if fetched == nil {
		return false
	}

	expected, err := c.buildForwardingPipelineConfig(pc, expectedDeviceData)
	if err != nil {
		return false
	}

	if fetched.GetCookie() != nil {
		return fetched.GetCookie().GetCookie() == expected.GetCookie().GetCookie()
	}

	log := util.WithOperation(c.DeviceID(), opGetPipelineConfig)
	c.noCookieOnce.Do(func() {
		log.Warnf("%s returned GetForwardingPipelineConfigResponse with 'cookie' field unset. "+
			"Will try by comparing 'device_data' and 'p4_info'...", c.DeviceID())
	})

	fetchedInfo := fetched.GetP4Info()
	if fetchedInfo == nil {
		fetchedInfo = &p4configv1.P4Info{}
	}

	// Deployment policy: a new device binary always comes with a new P4Info,
	// so a device that does not echo its binary is judged on P4Info alone.
	if len(fetched.GetP4DeviceConfig()) == 0 && len(expected.GetP4DeviceConfig()) > 0 {
		log.Debugf("%s returned GetForwardingPipelineConfigResponse with empty 'p4_device_config' field, "+
			"equality will be based only on P4Info", c.DeviceID())
		return proto.Equal(fetchedInfo, expected.GetP4Info())
	}

	if !bytes.Equal(fetched.GetP4DeviceConfig(), expected.GetP4DeviceConfig()) {
		if dc, err := DecodeDeviceConfig(fetched.GetP4DeviceConfig()); err != nil {
			log.Debugf("%s returned a p4_device_config that is not a P4DeviceConfig: %v", c.DeviceID(), err)
		} else {
			log.Debugf("%s runs different device data (%d bytes, expected %d)",
				c.DeviceID(), len(dc.DeviceData), len(expectedDeviceData))
		}
		return false
	}
	return proto.Equal(fetchedInfo, expected.GetP4Info())
}

// getPipelineCookie fetches the device's pipeline config with COOKIE_ONLY.
// The future resolves to nil when nothing is set or the read failed.
func (c *Client) getPipelineCookie() *grpcclient.Future[*p4v1.ForwardingPipelineConfig] {
	req := &p4v1.GetForwardingPipelineConfigRequest{
		DeviceId:     c.p4DeviceID,
		ResponseType: p4v1.GetForwardingPipelineConfigRequest_COOKIE_ONLY,
	}

	return grpcclient.SubmitInScope(c.Client, opGetPipelineConfig, func(ctx context.Context) (*p4v1.ForwardingPipelineConfig, error) {
		ctx, cancel := context.WithTimeout(ctx, c.timeouts.Short)
		defer cancel()

		resp, err := c.stub.GetForwardingPipelineConfig(ctx, req)
		if err != nil {
			// FAILED_PRECONDITION means no pipeline config was ever set.
			if status.Code(err) != codes.FailedPrecondition {
				c.HandleRPCError(err, opGetPipelineConfig)
			}
			return nil, nil
		}

		log := util.WithOperation(c.DeviceID(), opGetPipelineConfig)
		cfg := resp.GetConfig()
		if cfg == nil {
			log.Warnf("%s returned GetForwardingPipelineConfigResponse with 'config' field unset", c.DeviceID())
			return nil, nil
		}
		if n := len(cfg.GetP4DeviceConfig()); n > 0 {
			log.Warnf("%s returned GetForwardingPipelineConfigResponse with p4_device_config field set "+
				"(%d bytes), but we requested COOKIE_ONLY", c.DeviceID(), n)
		}
		if cfg.GetP4Info() != nil {
			log.Warnf("%s returned GetForwardingPipelineConfigResponse with p4_info field set "+
				"(%d bytes), but we requested COOKIE_ONLY", c.DeviceID(), proto.Size(cfg.GetP4Info()))
		}
		return cfg, nil
	})
}
