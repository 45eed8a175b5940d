package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/fixkme/fastgrpc/mlog"
)

// 节点全局状态
const (
	AppStateNone = iota // 未开始或已停止
	AppStateInit        // 正在初始化中
	AppStateRun         // 正在运行中
	AppStateStop        // 正在停止中
)

var ErrStarted = errors.New("app mods cannot start twice")

// 单例
var defaultApp = New()

type Module interface {
	OnInit(ctx context.Context) error // 初始化
	Run(ctx context.Context) error    // 启动, 阻塞到ctx结束
	Destroy()                         // 销毁
	Name() string                     // 名字
}

// DefaultApp 默认单例
func DefaultApp() *App {
	return defaultApp
}

// App 中的 modules 在初始化之后不能变更
type App struct {
	mods   []Module
	state  int32
	sig    chan os.Signal
	cancel context.CancelFunc
	wg     sync.WaitGroup
	errCh  chan error
}

func New() *App {
	return &App{sig: make(chan os.Signal, 1)}
}

func (app *App) setState(s int32) {
	atomic.StoreInt32(&app.state, s)
}

// GetState 获取状态
func (app *App) GetState() int32 {
	return atomic.LoadInt32(&app.state)
}

// start 依次初始化, 失败时逆序销毁已初始化的模块
func (app *App) start(ctx context.Context, mods ...Module) error {
	if !atomic.CompareAndSwapInt32(&app.state, AppStateNone, AppStateInit) {
		return ErrStarted
	}
	mlog.Info("app starting up")
	for i, m := range mods {
		if err := m.OnInit(ctx); err != nil {
			for j := i - 1; j >= 0; j-- {
				destroy(mods[j])
			}
			app.setState(AppStateNone)
			return fmt.Errorf("module %s init error: %w", m.Name(), err)
		}
	}
	app.mods = mods
	runCtx, cancel := context.WithCancel(ctx)
	app.cancel = cancel
	app.errCh = make(chan error, len(mods))
	for _, m := range mods {
		app.wg.Add(1)
		go app.run(runCtx, m)
	}
	app.setState(AppStateRun)
	mlog.Info("app started")
	return nil
}

func (app *App) run(ctx context.Context, m Module) {
	defer app.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			mlog.Errorf("%s module run panic: %v\n%s", m.Name(), r, debug.Stack())
			app.errCh <- fmt.Errorf("module %s panic: %v", m.Name(), r)
		}
	}()
	if err := m.Run(ctx); err != nil {
		app.errCh <- fmt.Errorf("module %s run error: %w", m.Name(), err)
	}
}

func (app *App) stop() {
	if app.GetState() != AppStateRun {
		return
	}
	mlog.Info("app stop begin")
	app.setState(AppStateStop)
	app.cancel()
	app.wg.Wait()
	// 先进后出
	for i := len(app.mods) - 1; i >= 0; i-- {
		m := app.mods[i]
		mlog.Infof("app stop module %s", m.Name())
		destroy(m)
	}
	app.mods = nil
	app.setState(AppStateNone)
	mlog.Info("app stoped")
}

func destroy(m Module) {
	defer func() {
		if r := recover(); r != nil {
			mlog.Errorf("%s module destroy panic: %v\n%s", m.Name(), r, debug.Stack())
		}
	}()
	m.Destroy()
}

// Run 阻塞直到收到退出信号、ctx结束或某个模块出错, 返回第一个模块错误
func (app *App) Run(ctx context.Context, mods ...Module) error {
	if err := app.start(ctx, mods...); err != nil {
		return err
	}
	signal.Notify(app.sig, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(app.sig)

	var err error
loop:
	for {
		select {
		case sig := <-app.sig:
			mlog.Infof("server closing down (signal: %v)", sig)
			if sig != syscall.SIGHUP {
				break loop
			}
		case <-ctx.Done():
			break loop
		case err = <-app.errCh:
			mlog.Errorf("server closing down: %v", err)
			break loop
		}
	}
	app.stop()
	return err
}

func (app *App) Stop() {
	app.sig <- syscall.SIGTERM
}
