package onnx

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/yalue/onnxruntime_go"
)

// Device names reported by Session.Device.
const (
	DeviceCPU  = "cpu"
	DeviceCUDA = "cuda"
)

// SessionConfig describes how to open a model.
type SessionConfig struct {
	ModelPath  string
	NumThreads int
	GPU        GPUConfig
}

// Session wraps a single-input, single-output ONNX Runtime session.
// Run is not synchronized; callers serialize access when sharing a Session.
type Session struct {
	sess       *onnxruntime_go.DynamicAdvancedSession
	inputName  string
	outputName string
	inputShape []int64
	device     string
}

// NewSession loads the model, preferring CUDA when cfg.GPU.UseGPU is set and
// falling back to CPU if the CUDA provider or the GPU session cannot be created.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.ModelPath == "" {
		return nil, errors.New("empty model path")
	}
	if err := ValidateGPUConfig(cfg.GPU); err != nil {
		return nil, err
	}
	if err := EnsureEnvironment(cfg.GPU.UseGPU); err != nil {
		return nil, err
	}

	inputs, outputs, err := onnxruntime_go.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("io info: %w", err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return nil, fmt.Errorf("unexpected io (in:%d out:%d)", len(inputs), len(outputs))
	}
	in, out := inputs[0], outputs[0]

	if cfg.GPU.UseGPU {
		sess, gpuErr := openSession(cfg, in.Name, out.Name, true)
		if gpuErr == nil {
			return newSession(sess, in, out, DeviceCUDA), nil
		}
		slog.Warn("CUDA session unavailable, falling back to CPU", "model", cfg.ModelPath, "error", gpuErr)
	}

	sess, err := openSession(cfg, in.Name, out.Name, false)
	if err != nil {
		return nil, err
	}
	return newSession(sess, in, out, DeviceCPU), nil
}

func newSession(sess *onnxruntime_go.DynamicAdvancedSession, in, out onnxruntime_go.InputOutputInfo, device string) *Session {
	return &Session{
		sess:       sess,
		inputName:  in.Name,
		outputName: out.Name,
		inputShape: append([]int64(nil), in.Dimensions...),
		device:     device,
	}
}

func openSession(cfg SessionConfig, inName, outName string, useGPU bool) (*onnxruntime_go.DynamicAdvancedSession, error) {
	opts, err := onnxruntime_go.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("session opts: %w", err)
	}
	defer func() {
		if err := opts.Destroy(); err != nil {
			slog.Warn("failed to destroy session options", "error", err)
		}
	}()

	if useGPU {
		if err := ConfigureSessionForGPU(opts, cfg.GPU); err != nil {
			return nil, err
		}
	}
	if cfg.NumThreads > 0 {
		if err := opts.SetIntraOpNumThreads(cfg.NumThreads); err != nil {
			return nil, fmt.Errorf("set threads: %w", err)
		}
	}

	sess, err := onnxruntime_go.NewDynamicAdvancedSession(cfg.ModelPath, []string{inName}, []string{outName}, opts)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	return sess, nil
}

// InputName returns the model's input identifier.
func (s *Session) InputName() string { return s.inputName }

// OutputName returns the model's output identifier.
func (s *Session) OutputName() string { return s.outputName }

// InputShape returns the declared input dimensions; dynamic axes are -1.
func (s *Session) InputShape() []int64 { return append([]int64(nil), s.inputShape...) }

// Device reports the execution provider actually in use.
func (s *Session) Device() string { return s.device }

// Run executes one forward pass and copies the float32 output out of the
// runtime-owned buffer.
func (s *Session) Run(input Tensor) (Tensor, error) {
	if s == nil || s.sess == nil {
		return Tensor{}, errors.New("session is closed")
	}

	in, err := onnxruntime_go.NewTensor(onnxruntime_go.NewShape(input.Shape...), input.Data)
	if err != nil {
		return Tensor{}, fmt.Errorf("create input tensor: %w", err)
	}
	defer func() { _ = in.Destroy() }()

	outputs := []onnxruntime_go.Value{nil}
	if err := s.sess.Run([]onnxruntime_go.Value{in}, outputs); err != nil {
		return Tensor{}, fmt.Errorf("run: %w", err)
	}
	defer func() {
		for _, o := range outputs {
			if o != nil {
				_ = o.Destroy()
			}
		}
	}()

	ft, ok := outputs[0].(*onnxruntime_go.Tensor[float32])
	if !ok {
		return Tensor{}, fmt.Errorf("unexpected output type %T", outputs[0])
	}

	data := ft.GetData()
	return Tensor{
		Data:  append([]float32(nil), data...),
		Shape: append([]int64(nil), ft.GetShape()...),
	}, nil
}

// Close destroys the underlying session. It is safe to call more than once.
func (s *Session) Close() error {
	if s == nil || s.sess == nil {
		return nil
	}
	err := s.sess.Destroy()
	s.sess = nil
	return err
}
