//go:build windows

package capture

import (
	"fmt"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

// COM vtable calling infrastructure. DXGI and WASAPI are driven through
// raw vtable calls so no cgo toolchain is needed on Windows.

// comGUID is a COM GUID (128-bit).
type comGUID struct {
	Data1 uint32
	Data2 uint16
	Data3 uint16
	Data4 [8]byte
}

const vtblQueryInterface = 0

// comCall invokes a COM vtable method at the given index.
// obj is a pointer to a COM interface (pointer to pointer to vtable).
func comCall(obj uintptr, vtableIdx int, args ...uintptr) (uintptr, error) {
	allArgs := make([]uintptr, 0, 1+len(args))
	allArgs = append(allArgs, obj)
	allArgs = append(allArgs, args...)
	ret, _, _ := syscall.SyscallN(comVtblFn(obj, vtableIdx), allArgs...)
	if int32(ret) < 0 {
		return ret, fmt.Errorf("COM vtable[%d] HRESULT 0x%08X", vtableIdx, uint32(ret))
	}
	return ret, nil
}

// comVtblFn resolves a COM vtable function pointer by index.
func comVtblFn(obj uintptr, idx int) uintptr {
	vtablePtr := *(*uintptr)(unsafe.Pointer(obj))
	return *(*uintptr)(unsafe.Pointer(vtablePtr + uintptr(idx)*unsafe.Sizeof(uintptr(0))))
}

// comRelease calls IUnknown::Release (vtable index 2).
func comRelease(obj uintptr) {
	if obj != 0 {
		syscall.SyscallN(comVtblFn(obj, 2), obj)
	}
}

var (
	ole32DLL  = windows.NewLazySystemDLL("ole32.dll")
	d3d11DLL  = windows.NewLazySystemDLL("d3d11.dll")
	user32DLL = windows.NewLazySystemDLL("user32.dll")

	procCoInitializeEx    = ole32DLL.NewProc("CoInitializeEx")
	procCoUninitialize    = ole32DLL.NewProc("CoUninitialize")
	procCoTaskMemFree     = ole32DLL.NewProc("CoTaskMemFree")
	procCoCreateInstance  = ole32DLL.NewProc("CoCreateInstance")
	procD3D11CreateDevice = d3d11DLL.NewProc("D3D11CreateDevice")

	procEnumWindows              = user32DLL.NewProc("EnumWindows")
	procIsWindowVisible          = user32DLL.NewProc("IsWindowVisible")
	procGetWindowTextW           = user32DLL.NewProc("GetWindowTextW")
	procGetWindowTextLengthW     = user32DLL.NewProc("GetWindowTextLengthW")
	procGetWindowThreadProcessId = user32DLL.NewProc("GetWindowThreadProcessId")
)
