package controller

import "github.com/ayusman/colorhit/internal/capture"

// AcquirerSource adapts a capture.Acquirer to FrameSource.
type AcquirerSource struct {
	Acquirer *capture.Acquirer
}

func (s AcquirerSource) Next() Frame {
	f := s.Acquirer.TakeFrame()
	if f == nil {
		return nil
	}
	return f
}
