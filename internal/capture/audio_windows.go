//go:build windows

package capture

import (
	"fmt"
	"runtime"
	"sync"
	"syscall"
	"time"
	"unsafe"

	"github.com/snacka-app/media/internal/audio"
)

// WASAPI COM GUIDs
var (
	clsidMMDeviceEnumerator = comGUID{0xBCDE0395, 0xE52F, 0x467C, [8]byte{0x8E, 0x3D, 0xC4, 0x57, 0x92, 0x91, 0x69, 0x2E}}
	iidIMMDeviceEnumerator  = comGUID{0xA95664D2, 0x9614, 0x4F35, [8]byte{0xA7, 0x46, 0xDE, 0x8D, 0xB6, 0x36, 0x17, 0xE6}}
	iidIAudioClient         = comGUID{0x1CB9AD4C, 0xDBFA, 0x4c32, [8]byte{0xB1, 0x78, 0xC2, 0xF5, 0x68, 0xA7, 0x03, 0xB2}}
	iidIAudioCaptureClient  = comGUID{0xC8ADBD64, 0xE71E, 0x48a0, [8]byte{0xA4, 0xDE, 0x18, 0x5C, 0x39, 0x5C, 0xD3, 0x17}}
)

// WASAPI constants
const (
	eRender  = 0
	eConsole = 0

	audclntStreamLoopback  = 0x00020000
	audclntShareModeShared = 0
	waveFormatIEEEFloat    = 0x0003
	waveFormatExtensible   = 0xFFFE

	audclntBufferFlagsSilent = 0x2
	audclntEDeviceInvalidated = 0x88890004

	// COM vtable indices (IUnknown = 0,1,2; interface methods start at 3)
	mmdeGetDefaultAudioEndpoint = 4  // IMMDeviceEnumerator::GetDefaultAudioEndpoint
	mmDeviceActivate            = 3  // IMMDevice::Activate
	audioClientInitialize       = 3  // IAudioClient::Initialize
	audioClientGetMixFormat     = 8  // IAudioClient::GetMixFormat
	audioClientStart            = 10 // IAudioClient::Start
	audioClientStop             = 11 // IAudioClient::Stop
	audioClientGetService       = 14 // IAudioClient::GetService
	capClientGetBuffer          = 3  // IAudioCaptureClient::GetBuffer
	capClientGetNextPacketSize  = 5  // IAudioCaptureClient::GetNextPacketSize
	capClientReleaseBuffer      = 4  // IAudioCaptureClient::ReleaseBuffer
)

// waveFormatEx matches WAVEFORMATEX.
type waveFormatEx struct {
	FormatTag      uint16
	Channels       uint16
	SamplesPerSec  uint32
	AvgBytesPerSec uint32
	BlockAlign     uint16
	BitsPerSample  uint16
	CbSize         uint16
}

// wasapiCapturer taps the default render device in loopback mode and
// hands buffers up in whatever mix format the audio engine runs at.
type wasapiCapturer struct {
	mu      sync.Mutex
	started bool

	enumerator    uintptr
	device        uintptr
	audioClient   uintptr
	captureClient uintptr
	format        audio.SampleFormat

	exclude map[int32]struct{}

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func newAudioCapturer(exclude map[int32]struct{}) (AudioCapturer, error) {
	if len(exclude) > 0 {
		// Shared-mode loopback taps the full engine mix; per-process
		// exclusion needs the process-loopback activation path, which the
		// engine only offers for capture INTO a process tree, not out of
		// one. The set is kept so the mixer-session filter can use it.
		log.Warn("audio exclusion set is advisory with WASAPI loopback", "processes", len(exclude))
	}
	return &wasapiCapturer{exclude: exclude, done: make(chan struct{})}, nil
}

func (w *wasapiCapturer) Format() audio.SampleFormat {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.format
}

func (w *wasapiCapturer) Start(onUnit func(AudioUnit)) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return fmt.Errorf("audio capturer already started")
	}
	w.started = true
	w.mu.Unlock()

	// COM objects are created and used on one locked thread.
	runtime.LockOSThread()

	hr, _, _ := procCoInitializeEx.Call(0, 0) // COINIT_MULTITHREADED
	if int32(hr) < 0 {
		return fmt.Errorf("CoInitializeEx failed: 0x%08X", uint32(hr))
	}

	var enumerator uintptr
	hr, _, _ = syscall.SyscallN(
		procCoCreateInstance.Addr(),
		uintptr(unsafe.Pointer(&clsidMMDeviceEnumerator)),
		0,
		uintptr(0x1|0x2|0x4|0x10), // CLSCTX_ALL
		uintptr(unsafe.Pointer(&iidIMMDeviceEnumerator)),
		uintptr(unsafe.Pointer(&enumerator)),
	)
	if int32(hr) < 0 {
		return fmt.Errorf("CoCreateInstance MMDeviceEnumerator: 0x%08X", uint32(hr))
	}
	w.enumerator = enumerator

	// Default render endpoint, since loopback taps what is playing.
	var device uintptr
	_, err := comCall(enumerator, mmdeGetDefaultAudioEndpoint,
		uintptr(eRender), uintptr(eConsole), uintptr(unsafe.Pointer(&device)))
	if err != nil {
		return fmt.Errorf("GetDefaultAudioEndpoint: %w", err)
	}
	w.device = device

	var audioClient uintptr
	_, err = comCall(device, mmDeviceActivate,
		uintptr(unsafe.Pointer(&iidIAudioClient)),
		uintptr(0x1|0x2|0x4|0x10),
		0,
		uintptr(unsafe.Pointer(&audioClient)),
	)
	if err != nil {
		return fmt.Errorf("Activate IAudioClient: %w", err)
	}
	w.audioClient = audioClient

	var mixFormatPtr uintptr
	_, err = comCall(audioClient, audioClientGetMixFormat, uintptr(unsafe.Pointer(&mixFormatPtr)))
	if err != nil {
		return fmt.Errorf("GetMixFormat: %w", err)
	}
	mixFormat := *(*waveFormatEx)(unsafe.Pointer(mixFormatPtr))

	isFloat := mixFormat.FormatTag == waveFormatIEEEFloat ||
		(mixFormat.FormatTag == waveFormatExtensible && mixFormat.BitsPerSample == 32)
	w.mu.Lock()
	w.format = audio.SampleFormat{
		SampleRate:    int(mixFormat.SamplesPerSec),
		Channels:      int(mixFormat.Channels),
		BitsPerSample: int(mixFormat.BitsPerSample),
		IsFloat:       isFloat,
	}
	format := w.format
	w.mu.Unlock()

	log.Info("WASAPI mix format", "format", format.String())

	// Loopback mode, shared, 200ms buffer (100ns units).
	bufferDuration := int64(200 * 10000)
	_, err = comCall(audioClient, audioClientInitialize,
		uintptr(audclntShareModeShared),
		uintptr(audclntStreamLoopback),
		uintptr(bufferDuration),
		0,
		mixFormatPtr, // must stay valid COM memory until Initialize returns
		0,
	)
	procCoTaskMemFree.Call(mixFormatPtr)
	if err != nil {
		return fmt.Errorf("Initialize: %w", err)
	}

	var captureClient uintptr
	_, err = comCall(audioClient, audioClientGetService,
		uintptr(unsafe.Pointer(&iidIAudioCaptureClient)),
		uintptr(unsafe.Pointer(&captureClient)),
	)
	if err != nil {
		return fmt.Errorf("GetService IAudioCaptureClient: %w", err)
	}
	w.captureClient = captureClient

	_, err = comCall(audioClient, audioClientStart)
	if err != nil {
		return fmt.Errorf("Start: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		// COM apartment safety: the loop owns its thread.
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		hr, _, _ := procCoInitializeEx.Call(0, 0)
		if int32(hr) < 0 {
			log.Error("audio capture goroutine: CoInitializeEx failed", "hr", fmt.Sprintf("0x%08X", uint32(hr)))
			return
		}
		defer procCoUninitialize.Call()

		w.captureLoop(onUnit, format)
	}()

	return nil
}

func (w *wasapiCapturer) captureLoop(onUnit func(AudioUnit), format audio.SampleFormat) {
	bytesPerFrame := format.BytesPerFrame()
	start := time.Now()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
		}

		for {
			var packetLength uint32
			hr, _, _ := syscall.SyscallN(
				comVtblFn(w.captureClient, capClientGetNextPacketSize),
				w.captureClient,
				uintptr(unsafe.Pointer(&packetLength)),
			)
			if int32(hr) < 0 || packetLength == 0 {
				break
			}

			var dataPtr uintptr
			var numFrames uint32
			var flags uint32
			hr, _, _ = syscall.SyscallN(
				comVtblFn(w.captureClient, capClientGetBuffer),
				w.captureClient,
				uintptr(unsafe.Pointer(&dataPtr)),
				uintptr(unsafe.Pointer(&numFrames)),
				uintptr(unsafe.Pointer(&flags)),
				0,
				0,
			)
			if int32(hr) < 0 {
				if uint32(hr) == audclntEDeviceInvalidated {
					log.Warn("audio device invalidated, stopping capture")
					return
				}
				log.Debug("WASAPI GetBuffer transient error", "hr", fmt.Sprintf("0x%08X", uint32(hr)))
				break
			}
			if numFrames == 0 {
				break
			}

			ts := uint64(time.Since(start).Milliseconds())
			unit := AudioUnit{Frames: int(numFrames), TimestampMS: ts}

			if flags&audclntBufferFlagsSilent != 0 || dataPtr == 0 {
				unit.Silent = true
			} else {
				raw := unsafe.Slice((*byte)(unsafe.Pointer(dataPtr)), int(numFrames)*bytesPerFrame)
				// GetBuffer memory belongs to the engine, copy before release.
				unit.Data = append([]byte(nil), raw...)
			}

			syscall.SyscallN(
				comVtblFn(w.captureClient, capClientReleaseBuffer),
				w.captureClient,
				uintptr(numFrames),
			)

			onUnit(unit)
		}
	}
}

func (w *wasapiCapturer) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
	})
	w.wg.Wait()

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.audioClient != 0 {
		comCall(w.audioClient, audioClientStop)
	}
	comRelease(w.captureClient)
	comRelease(w.audioClient)
	comRelease(w.device)
	comRelease(w.enumerator)
	w.captureClient, w.audioClient, w.device, w.enumerator = 0, 0, 0, 0
}
