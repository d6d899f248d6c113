//go:build windows

package capture

import (
	"fmt"
	"syscall"
	"unsafe"
)

// listDisplays enumerates connected displays via DXGI so the indices line
// up with the duplication capturer's EnumOutputs indices.
func listDisplays() ([]Display, error) {
	var device, context uintptr
	featureLevel := uint32(d3dFeatureLevel11_0)
	var actualLevel uint32

	hr, _, _ := procD3D11CreateDevice.Call(
		0,
		uintptr(d3dDriverTypeHardware),
		0,
		0, // no special flags needed for enumeration
		uintptr(unsafe.Pointer(&featureLevel)),
		1,
		uintptr(d3d11SDKVersion),
		uintptr(unsafe.Pointer(&device)),
		uintptr(unsafe.Pointer(&actualLevel)),
		uintptr(unsafe.Pointer(&context)),
	)
	if int32(hr) < 0 {
		return nil, fmt.Errorf("D3D11CreateDevice failed: 0x%08X", uint32(hr))
	}
	defer comRelease(context)
	defer comRelease(device)

	var dxgiDevice uintptr
	_, err := comCall(device, vtblQueryInterface,
		uintptr(unsafe.Pointer(&iidIDXGIDevice)),
		uintptr(unsafe.Pointer(&dxgiDevice)),
	)
	if err != nil {
		return nil, fmt.Errorf("QueryInterface IDXGIDevice: %w", err)
	}
	defer comRelease(dxgiDevice)

	var adapter uintptr
	_, err = comCall(dxgiDevice, dxgiDeviceGetAdapter, uintptr(unsafe.Pointer(&adapter)))
	if err != nil {
		return nil, fmt.Errorf("IDXGIDevice::GetAdapter: %w", err)
	}
	defer comRelease(adapter)

	var displays []Display
	for i := 0; ; i++ {
		var output uintptr
		hr, _, _ := syscall.SyscallN(
			comVtblFn(adapter, dxgiAdapterEnumOutputs),
			adapter,
			uintptr(i),
			uintptr(unsafe.Pointer(&output)),
		)
		if int32(hr) < 0 {
			if uint32(hr) != dxgiErrNotFound {
				log.Warn("DXGI EnumOutputs failed", "index", i, "hr", fmt.Sprintf("0x%08X", uint32(hr)))
			}
			break
		}

		var desc dxgiOutputDesc
		hr, _, _ = syscall.SyscallN(
			comVtblFn(output, dxgiOutputGetDesc),
			output,
			uintptr(unsafe.Pointer(&desc)),
		)
		comRelease(output)

		if int32(hr) < 0 {
			log.Warn("DXGI GetDesc failed", "index", i, "hr", fmt.Sprintf("0x%08X", uint32(hr)))
			continue
		}
		if desc.AttachedToDesktop == 0 {
			continue
		}

		displays = append(displays, Display{
			Index:   i,
			Name:    syscall.UTF16ToString(desc.DeviceName[:]),
			Width:   int(desc.Right - desc.Left),
			Height:  int(desc.Bottom - desc.Top),
			X:       int(desc.Left),
			Y:       int(desc.Top),
			Primary: desc.Left == 0 && desc.Top == 0,
		})
	}
	return displays, nil
}

// listWindows enumerates visible titled top-level windows.
func listWindows() ([]Window, error) {
	var windows []Window
	apps, _ := ListApplications()
	pidToApp := make(map[int32]string, 64)
	for _, a := range apps {
		for _, pid := range a.PIDs {
			pidToApp[pid] = a.Name
		}
	}

	cb := syscall.NewCallback(func(hwnd uintptr, _ uintptr) uintptr {
		visible, _, _ := procIsWindowVisible.Call(hwnd)
		if visible == 0 {
			return 1 // continue enumeration
		}

		titleLen, _, _ := procGetWindowTextLengthW.Call(hwnd)
		if titleLen == 0 {
			return 1
		}
		buf := make([]uint16, titleLen+1)
		procGetWindowTextW.Call(hwnd, uintptr(unsafe.Pointer(&buf[0])), titleLen+1)
		title := syscall.UTF16ToString(buf)
		if title == "" {
			return 1
		}

		var pid uint32
		procGetWindowThreadProcessId.Call(hwnd, uintptr(unsafe.Pointer(&pid)))
		appName := pidToApp[int32(pid)]
		switch appName {
		case "TextInputHost", "ApplicationFrameHost", "SystemSettings", "ShellExperienceHost":
			return 1 // shell chrome, not capturable content
		}

		if len(title) > 100 {
			title = title[:97] + "..."
		}
		windows = append(windows, Window{
			ID:      uint64(hwnd),
			Title:   title,
			AppName: appName,
		})
		return 1
	})

	ret, _, _ := procEnumWindows.Call(cb, 0)
	if ret == 0 {
		return windows, fmt.Errorf("EnumWindows failed")
	}
	return windows, nil
}
