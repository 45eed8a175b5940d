package rpc

import (
	"io"
	"iter"
)

// AnyStream 客户端流的无类型读取端, 只能被一个消费者读取
type AnyStream struct {
	recv func() (any, error)
	err  error
}

// NewAnyStream recv 读完时返回 io.EOF
func NewAnyStream(recv func() (any, error)) *AnyStream {
	return &AnyStream{recv: recv}
}

// SliceStream 以给定元素构造一个流
func SliceStream(items ...any) *AnyStream {
	i := 0
	return NewAnyStream(func() (any, error) {
		if i >= len(items) {
			return nil, io.EOF
		}
		v := items[i]
		i++
		return v, nil
	})
}

// Recv 流结束后一直返回同一个错误
func (s *AnyStream) Recv() (any, error) {
	if s.err != nil {
		return nil, s.err
	}
	v, err := s.recv()
	if err != nil {
		s.err = err
		return nil, err
	}
	return v, nil
}

// All 遍历剩余元素, 正常结束不产出 io.EOF
func (s *AnyStream) All() iter.Seq2[any, error] {
	return func(yield func(any, error) bool) {
		for {
			v, err := s.Recv()
			if err == io.EOF {
				return
			}
			if !yield(v, err) || err != nil {
				return
			}
		}
	}
}

// Stream 处理函数看到的有类型请求流
type Stream[T any] struct {
	src *AnyStream
}

func NewStream[T any](src *AnyStream) *Stream[T] {
	return &Stream[T]{src: src}
}

func (s *Stream[T]) Recv() (*T, error) {
	v, err := s.src.Recv()
	if err != nil {
		return nil, err
	}
	t, ok := v.(*T)
	if !ok {
		return nil, unexpected(v)
	}
	return t, nil
}

func (s *Stream[T]) All() iter.Seq2[*T, error] {
	return func(yield func(*T, error) bool) {
		for {
			v, err := s.Recv()
			if err == io.EOF {
				return
			}
			if !yield(v, err) || err != nil {
				return
			}
		}
	}
}
